package repository

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/models"
)

// GormStore is the Account Store on MySQL or PostgreSQL through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists the tables the store needs, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&models.GamificationAccount{},
		&models.PointTransaction{},
		&models.DailyCheckIn{},
		&models.Badge{},
		&models.AccountBadge{},
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx gamification.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) CreateAccount(ctx context.Context, account *models.GamificationAccount) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(account)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) GetAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error) {
	var account models.GamificationAccount
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gamification.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *GormStore) LockAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error) {
	var account models.GamificationAccount
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gamification.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SaveAccount writes the mutable columns with a map so zero values (a reset streak) are kept.
func (s *GormStore) SaveAccount(ctx context.Context, account *models.GamificationAccount) error {
	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return s.db.WithContext(ctx).
		Model(&models.GamificationAccount{}).
		Where("account_id = ?", account.AccountID).
		Updates(map[string]interface{}{
			"total_points":      account.TotalPoints,
			"level":             account.Level,
			"current_streak":    account.CurrentStreak,
			"longest_streak":    account.LongestStreak,
			"last_check_in_day": account.LastCheckInDay,
			"updated_at":        updatedAt,
		}).Error
}

func (s *GormStore) ListStreakingAccounts(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.GamificationAccount{}).
		Where("current_streak > 0 AND account_id > ?", afterID).
		Order("account_id ASC").
		Limit(limit).
		Pluck("account_id", &ids).Error
	return ids, err
}

func (s *GormStore) AppendTransaction(ctx context.Context, txn *models.PointTransaction) error {
	return s.db.WithContext(ctx).Create(txn).Error
}

func (s *GormStore) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]models.PointTransaction, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("account_id = ?", accountID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var txns []models.PointTransaction
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	return txns, total, err
}

func (s *GormStore) CountByKind(ctx context.Context, accountID string) (map[gamification.PointKind]int64, error) {
	var rows []struct {
		Kind  string
		Total int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Select("kind, COUNT(*) AS total").
		Where("account_id = ?", accountID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[gamification.PointKind]int64, len(rows))
	for _, r := range rows {
		counts[gamification.PointKind(r.Kind)] = r.Total
	}
	return counts, nil
}

func (s *GormStore) SumTransactions(ctx context.Context, accountID string) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("account_id = ?", accountID).
		Select("COALESCE(SUM(amount),0)").
		Scan(&sum).Error
	return sum, err
}

func (s *GormStore) ActivityTimes(ctx context.Context, accountID string, kind gamification.PointKind, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := s.db.WithContext(ctx).
		Model(&models.PointTransaction{}).
		Where("account_id = ? AND kind = ? AND created_at >= ?", accountID, string(kind), since).
		Order("created_at ASC").
		Pluck("created_at", &times).Error
	return times, err
}

func (s *GormStore) HasCheckIn(ctx context.Context, accountID, day string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.DailyCheckIn{}).
		Where("account_id = ? AND day = ?", accountID, day).
		Count(&n).Error
	return n > 0, err
}

// InsertCheckIn uses an idempotent insert so a lost race does not abort a PostgreSQL transaction.
func (s *GormStore) InsertCheckIn(ctx context.Context, checkIn *models.DailyCheckIn) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(checkIn)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return gamification.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gamification.ErrDuplicate
	}
	return nil
}

func (s *GormStore) UpsertBadges(ctx context.Context, badges []models.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	now := time.Now()
	for i := range badges {
		badges[i].UpdatedAt = now
		if badges[i].CreatedAt.IsZero() {
			badges[i].CreatedAt = now
		}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "points_reward", "category", "threshold", "is_active", "updated_at"}),
	}).Create(&badges).Error
}

func (s *GormStore) ListBadges(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.db.WithContext(ctx).Order("category ASC, id ASC").Find(&badges).Error
	return badges, err
}

func (s *GormStore) BadgeByName(ctx context.Context, name string) (*models.Badge, error) {
	var badge models.Badge
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, gamification.ErrBadgeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

func (s *GormStore) HasBadge(ctx context.Context, accountID string, badgeID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.AccountBadge{}).
		Where("account_id = ? AND badge_id = ?", accountID, badgeID).
		Count(&n).Error
	return n > 0, err
}

func (s *GormStore) InsertAccountBadge(ctx context.Context, ownership *models.AccountBadge) error {
	res := s.db.WithContext(ctx).
		Omit("Badge").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ownership)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return gamification.ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gamification.ErrDuplicate
	}
	return nil
}

func (s *GormStore) CountAccountBadges(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.AccountBadge{}).
		Where("account_id = ?", accountID).
		Count(&n).Error
	return n, err
}

func (s *GormStore) ListAccountBadges(ctx context.Context, accountID string) ([]models.AccountBadge, error) {
	var owned []models.AccountBadge
	err := s.db.WithContext(ctx).
		Preload("Badge").
		Where("account_id = ?", accountID).
		Order("unlocked_at ASC, id ASC").
		Find(&owned).Error
	return owned, err
}

// isUniqueViolation recognizes duplicate-key errors from either dialect.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

var _ gamification.Store = (*GormStore)(nil)
