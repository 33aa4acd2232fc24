package gamification

import (
	"context"
	"time"

	"github.com/mindhaven/mindhaven/models"
)

// Store is the Account Store. Methods called on the Store handed to a Transaction
// callback run inside that transaction; the callback's error rolls everything back.
//
// Implementations must:
//   - lock the account row in LockAccount until the transaction ends,
//   - return ErrNotFound for a missing account and ErrBadgeNotFound for a missing badge,
//   - return ErrDuplicate (without poisoning the transaction) when a check-in or
//     badge ownership insert hits its unique key.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// CreateAccount inserts a fresh state row; created is false when it already existed.
	CreateAccount(ctx context.Context, account *models.GamificationAccount) (created bool, err error)
	GetAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error)
	LockAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error)
	SaveAccount(ctx context.Context, account *models.GamificationAccount) error
	// ListStreakingAccounts pages through account ids with a positive current streak, ordered by id.
	ListStreakingAccounts(ctx context.Context, afterID string, limit int) ([]string, error)

	AppendTransaction(ctx context.Context, txn *models.PointTransaction) error
	// ListTransactions returns newest first plus the total count.
	ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]models.PointTransaction, int64, error)
	CountByKind(ctx context.Context, accountID string) (map[PointKind]int64, error)
	SumTransactions(ctx context.Context, accountID string) (int64, error)
	// ActivityTimes returns creation times of kind transactions at or after since.
	ActivityTimes(ctx context.Context, accountID string, kind PointKind, since time.Time) ([]time.Time, error)

	HasCheckIn(ctx context.Context, accountID, day string) (bool, error)
	InsertCheckIn(ctx context.Context, checkIn *models.DailyCheckIn) error

	UpsertBadges(ctx context.Context, badges []models.Badge) error
	ListBadges(ctx context.Context) ([]models.Badge, error)
	BadgeByName(ctx context.Context, name string) (*models.Badge, error)
	HasBadge(ctx context.Context, accountID string, badgeID uint) (bool, error)
	InsertAccountBadge(ctx context.Context, ownership *models.AccountBadge) error
	CountAccountBadges(ctx context.Context, accountID string) (int64, error)
	ListAccountBadges(ctx context.Context, accountID string) ([]models.AccountBadge, error)
}

// Notifier receives outcomes after commit. Errors are logged by the engine and otherwise ignored;
// retrying delivery is the notifier's business.
type Notifier interface {
	NotifyLevelUp(ctx context.Context, accountID string, newLevel int, levelName string) error
	NotifyBadgeUnlocked(ctx context.Context, accountID, badgeName string) error
	NotifyStreakBonus(ctx context.Context, accountID string, days, bonusAmount int) error
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyLevelUp(context.Context, string, int, string) error  { return nil }
func (NopNotifier) NotifyBadgeUnlocked(context.Context, string, string) error { return nil }
func (NopNotifier) NotifyStreakBonus(context.Context, string, int, int) error { return nil }

// StatsCache is a byte cache for read models. Failures are treated as misses.
type StatsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}
