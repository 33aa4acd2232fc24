package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/models"
)

// MemoryStore keeps everything in process. Transactions are serialized and work on a copy
// that replaces the committed data only when the callback succeeds, so LockAccount needs
// no per-row lock. Used for development (db_driver "memory") and tests.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	accounts    map[string]models.GamificationAccount
	txns        []models.PointTransaction
	checkIns    map[string]models.DailyCheckIn
	nextCheckIn uint
	badges      []models.Badge
	owned       map[string]models.AccountBadge
	nextOwned   uint
}

func newMemData() *memData {
	return &memData{
		accounts: make(map[string]models.GamificationAccount),
		checkIns: make(map[string]models.DailyCheckIn),
		owned:    make(map[string]models.AccountBadge),
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		accounts:    make(map[string]models.GamificationAccount, len(d.accounts)),
		txns:        append([]models.PointTransaction(nil), d.txns...),
		checkIns:    make(map[string]models.DailyCheckIn, len(d.checkIns)),
		nextCheckIn: d.nextCheckIn,
		badges:      append([]models.Badge(nil), d.badges...),
		owned:       make(map[string]models.AccountBadge, len(d.owned)),
		nextOwned:   d.nextOwned,
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.checkIns {
		c.checkIns[k] = v
	}
	for k, v := range d.owned {
		c.owned[k] = v
	}
	return c
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx gamification.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&memView{data: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) read(fn func(v *memView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memView{data: s.data})
}

func (s *MemoryStore) write(ctx context.Context, fn func(v *memView) error) error {
	return s.Transaction(ctx, func(tx gamification.Store) error {
		return fn(tx.(*memView))
	})
}

func (s *MemoryStore) CreateAccount(ctx context.Context, account *models.GamificationAccount) (created bool, err error) {
	err = s.write(ctx, func(v *memView) error {
		created, err = v.CreateAccount(ctx, account)
		return err
	})
	return created, err
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (account *models.GamificationAccount, err error) {
	err = s.read(func(v *memView) error {
		account, err = v.GetAccount(ctx, accountID)
		return err
	})
	return account, err
}

func (s *MemoryStore) LockAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error) {
	return s.GetAccount(ctx, accountID)
}

func (s *MemoryStore) SaveAccount(ctx context.Context, account *models.GamificationAccount) error {
	return s.write(ctx, func(v *memView) error { return v.SaveAccount(ctx, account) })
}

func (s *MemoryStore) ListStreakingAccounts(ctx context.Context, afterID string, limit int) (ids []string, err error) {
	err = s.read(func(v *memView) error {
		ids, err = v.ListStreakingAccounts(ctx, afterID, limit)
		return err
	})
	return ids, err
}

func (s *MemoryStore) AppendTransaction(ctx context.Context, txn *models.PointTransaction) error {
	return s.write(ctx, func(v *memView) error { return v.AppendTransaction(ctx, txn) })
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string, limit, offset int) (txns []models.PointTransaction, total int64, err error) {
	err = s.read(func(v *memView) error {
		txns, total, err = v.ListTransactions(ctx, accountID, limit, offset)
		return err
	})
	return txns, total, err
}

func (s *MemoryStore) CountByKind(ctx context.Context, accountID string) (counts map[gamification.PointKind]int64, err error) {
	err = s.read(func(v *memView) error {
		counts, err = v.CountByKind(ctx, accountID)
		return err
	})
	return counts, err
}

func (s *MemoryStore) SumTransactions(ctx context.Context, accountID string) (sum int64, err error) {
	err = s.read(func(v *memView) error {
		sum, err = v.SumTransactions(ctx, accountID)
		return err
	})
	return sum, err
}

func (s *MemoryStore) ActivityTimes(ctx context.Context, accountID string, kind gamification.PointKind, since time.Time) (times []time.Time, err error) {
	err = s.read(func(v *memView) error {
		times, err = v.ActivityTimes(ctx, accountID, kind, since)
		return err
	})
	return times, err
}

func (s *MemoryStore) HasCheckIn(ctx context.Context, accountID, day string) (ok bool, err error) {
	err = s.read(func(v *memView) error {
		ok, err = v.HasCheckIn(ctx, accountID, day)
		return err
	})
	return ok, err
}

func (s *MemoryStore) InsertCheckIn(ctx context.Context, checkIn *models.DailyCheckIn) error {
	return s.write(ctx, func(v *memView) error { return v.InsertCheckIn(ctx, checkIn) })
}

func (s *MemoryStore) UpsertBadges(ctx context.Context, badges []models.Badge) error {
	return s.write(ctx, func(v *memView) error { return v.UpsertBadges(ctx, badges) })
}

func (s *MemoryStore) ListBadges(ctx context.Context) (badges []models.Badge, err error) {
	err = s.read(func(v *memView) error {
		badges, err = v.ListBadges(ctx)
		return err
	})
	return badges, err
}

func (s *MemoryStore) BadgeByName(ctx context.Context, name string) (badge *models.Badge, err error) {
	err = s.read(func(v *memView) error {
		badge, err = v.BadgeByName(ctx, name)
		return err
	})
	return badge, err
}

func (s *MemoryStore) HasBadge(ctx context.Context, accountID string, badgeID uint) (ok bool, err error) {
	err = s.read(func(v *memView) error {
		ok, err = v.HasBadge(ctx, accountID, badgeID)
		return err
	})
	return ok, err
}

func (s *MemoryStore) InsertAccountBadge(ctx context.Context, ownership *models.AccountBadge) error {
	return s.write(ctx, func(v *memView) error { return v.InsertAccountBadge(ctx, ownership) })
}

func (s *MemoryStore) CountAccountBadges(ctx context.Context, accountID string) (n int64, err error) {
	err = s.read(func(v *memView) error {
		n, err = v.CountAccountBadges(ctx, accountID)
		return err
	})
	return n, err
}

func (s *MemoryStore) ListAccountBadges(ctx context.Context, accountID string) (owned []models.AccountBadge, err error) {
	err = s.read(func(v *memView) error {
		owned, err = v.ListAccountBadges(ctx, accountID)
		return err
	})
	return owned, err
}

// memView is the Store seen inside a MemoryStore transaction, or a read-only view of committed data.
type memView struct {
	data *memData
}

// Transaction joins the surrounding one.
func (v *memView) Transaction(_ context.Context, fn func(tx gamification.Store) error) error {
	return fn(v)
}

func (v *memView) CreateAccount(_ context.Context, account *models.GamificationAccount) (bool, error) {
	if _, ok := v.data.accounts[account.AccountID]; ok {
		return false, nil
	}
	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	if account.UpdatedAt.IsZero() {
		account.UpdatedAt = now
	}
	if account.Level == 0 {
		account.Level = 1
	}
	v.data.accounts[account.AccountID] = *account
	return true, nil
}

func (v *memView) GetAccount(_ context.Context, accountID string) (*models.GamificationAccount, error) {
	account, ok := v.data.accounts[accountID]
	if !ok {
		return nil, gamification.ErrNotFound
	}
	return &account, nil
}

func (v *memView) LockAccount(ctx context.Context, accountID string) (*models.GamificationAccount, error) {
	return v.GetAccount(ctx, accountID)
}

func (v *memView) SaveAccount(_ context.Context, account *models.GamificationAccount) error {
	current, ok := v.data.accounts[account.AccountID]
	if !ok {
		return nil
	}
	current.TotalPoints = account.TotalPoints
	current.Level = account.Level
	current.CurrentStreak = account.CurrentStreak
	current.LongestStreak = account.LongestStreak
	current.LastCheckInDay = account.LastCheckInDay
	current.UpdatedAt = account.UpdatedAt
	if current.UpdatedAt.IsZero() {
		current.UpdatedAt = time.Now()
	}
	v.data.accounts[account.AccountID] = current
	return nil
}

func (v *memView) ListStreakingAccounts(_ context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	for id, a := range v.data.accounts {
		if a.CurrentStreak > 0 && id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (v *memView) AppendTransaction(_ context.Context, txn *models.PointTransaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	v.data.txns = append(v.data.txns, *txn)
	return nil
}

func (v *memView) ListTransactions(_ context.Context, accountID string, limit, offset int) ([]models.PointTransaction, int64, error) {
	var mine []models.PointTransaction
	for i := len(v.data.txns) - 1; i >= 0; i-- {
		if v.data.txns[i].AccountID == accountID {
			mine = append(mine, v.data.txns[i])
		}
	}
	// newest first; ties keep reverse insertion order
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	total := int64(len(mine))
	if offset >= len(mine) {
		return []models.PointTransaction{}, total, nil
	}
	mine = mine[offset:]
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, total, nil
}

func (v *memView) CountByKind(_ context.Context, accountID string) (map[gamification.PointKind]int64, error) {
	counts := make(map[gamification.PointKind]int64)
	for _, t := range v.data.txns {
		if t.AccountID == accountID {
			counts[gamification.PointKind(t.Kind)]++
		}
	}
	return counts, nil
}

func (v *memView) SumTransactions(_ context.Context, accountID string) (int64, error) {
	var sum int64
	for _, t := range v.data.txns {
		if t.AccountID == accountID {
			sum += int64(t.Amount)
		}
	}
	return sum, nil
}

func (v *memView) ActivityTimes(_ context.Context, accountID string, kind gamification.PointKind, since time.Time) ([]time.Time, error) {
	var times []time.Time
	for _, t := range v.data.txns {
		if t.AccountID == accountID && t.Kind == string(kind) && !t.CreatedAt.Before(since) {
			times = append(times, t.CreatedAt)
		}
	}
	return times, nil
}

func checkInKey(accountID, day string) string { return accountID + "|" + day }

func (v *memView) HasCheckIn(_ context.Context, accountID, day string) (bool, error) {
	_, ok := v.data.checkIns[checkInKey(accountID, day)]
	return ok, nil
}

func (v *memView) InsertCheckIn(_ context.Context, checkIn *models.DailyCheckIn) error {
	key := checkInKey(checkIn.AccountID, checkIn.Day)
	if _, ok := v.data.checkIns[key]; ok {
		return gamification.ErrDuplicate
	}
	v.data.nextCheckIn++
	checkIn.ID = v.data.nextCheckIn
	if checkIn.CreatedAt.IsZero() {
		checkIn.CreatedAt = time.Now()
	}
	v.data.checkIns[key] = *checkIn
	return nil
}

func (v *memView) UpsertBadges(_ context.Context, badges []models.Badge) error {
	now := time.Now()
	for i := range badges {
		b := &badges[i]
		found := false
		for j := range v.data.badges {
			existing := &v.data.badges[j]
			if existing.Name != b.Name {
				continue
			}
			existing.Description = b.Description
			existing.PointsReward = b.PointsReward
			existing.Category = b.Category
			existing.Threshold = b.Threshold
			existing.IsActive = b.IsActive
			existing.UpdatedAt = now
			b.ID = existing.ID
			found = true
			break
		}
		if found {
			continue
		}
		b.ID = uint(len(v.data.badges) + 1)
		b.CreatedAt, b.UpdatedAt = now, now
		v.data.badges = append(v.data.badges, *b)
	}
	return nil
}

func (v *memView) ListBadges(_ context.Context) ([]models.Badge, error) {
	out := append([]models.Badge(nil), v.data.badges...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *memView) BadgeByName(_ context.Context, name string) (*models.Badge, error) {
	for _, b := range v.data.badges {
		if b.Name == name {
			badge := b
			return &badge, nil
		}
	}
	return nil, gamification.ErrBadgeNotFound
}

// SetBadgeActive toggles a catalog entry; used to retire badges without deleting ownerships.
func (s *MemoryStore) SetBadgeActive(ctx context.Context, name string, active bool) error {
	return s.write(ctx, func(v *memView) error {
		for j := range v.data.badges {
			if v.data.badges[j].Name == name {
				v.data.badges[j].IsActive = active
				return nil
			}
		}
		return gamification.ErrBadgeNotFound
	})
}

func ownedKey(accountID string, badgeID uint) string {
	return accountID + "|" + strconv.FormatUint(uint64(badgeID), 10)
}

func (v *memView) HasBadge(_ context.Context, accountID string, badgeID uint) (bool, error) {
	_, ok := v.data.owned[ownedKey(accountID, badgeID)]
	return ok, nil
}

func (v *memView) InsertAccountBadge(_ context.Context, ownership *models.AccountBadge) error {
	key := ownedKey(ownership.AccountID, ownership.BadgeID)
	if _, ok := v.data.owned[key]; ok {
		return gamification.ErrDuplicate
	}
	v.data.nextOwned++
	ownership.ID = v.data.nextOwned
	if ownership.UnlockedAt.IsZero() {
		ownership.UnlockedAt = time.Now()
	}
	stored := *ownership
	stored.Badge = models.Badge{}
	v.data.owned[key] = stored
	return nil
}

func (v *memView) CountAccountBadges(_ context.Context, accountID string) (int64, error) {
	var n int64
	for _, o := range v.data.owned {
		if o.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (v *memView) ListAccountBadges(_ context.Context, accountID string) ([]models.AccountBadge, error) {
	out := []models.AccountBadge{}
	for _, o := range v.data.owned {
		if o.AccountID != accountID {
			continue
		}
		for _, b := range v.data.badges {
			if b.ID == o.BadgeID {
				o.Badge = b
				break
			}
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].UnlockedAt.Before(out[j].UnlockedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var (
	_ gamification.Store = (*MemoryStore)(nil)
	_ gamification.Store = (*memView)(nil)
)
