package gamification

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/metrics"
	"github.com/mindhaven/mindhaven/models"
)

const (
	statsCachePrefix  = "cache:gamification:stats:"
	defaultStatsTTL   = 5 * time.Minute
	maxDescriptionLen = 255
)

var descriptionPolicy = bluemonday.StrictPolicy()

// Engine is the gamification engine. It is safe for concurrent use; consistency between
// concurrent calls for one account comes from the Store's row lock.
type Engine struct {
	store    Store
	notifier Notifier
	cache    StatsCache
	statsTTL time.Duration
	calendar Calendar
	logger   *zap.Logger
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithStatsCache enables caching of GetUserStats results.
func WithStatsCache(c StatsCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		if ttl > 0 {
			e.statsTTL = ttl
		}
	}
}

func WithCalendar(c Calendar) Option {
	return func(e *Engine) { e.calendar = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an engine over store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: NopNotifier{},
		statsTTL: defaultStatsTTL,
		calendar: NewCalendar(time.UTC, time.Now),
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calendar exposes the day policy the engine runs on.
func (e *Engine) Calendar() Calendar {
	return e.calendar
}

// AwardRequest is one point-earning event.
type AwardRequest struct {
	AccountID     string    `json:"account_id"`
	Kind          PointKind `json:"kind"`
	Description   string    `json:"description"`
	ReferenceID   string    `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
}

// AwardResult reports a committed award. NewTotal is the balance right after the triggering
// credit; TotalPoints also counts badge rewards credited in the same call.
type AwardResult struct {
	PointsAwarded  int      `json:"points_awarded"`
	NewTotal       int      `json:"new_total"`
	TotalPoints    int      `json:"total_points"`
	LevelUp        *LevelUp `json:"level_up"`
	BadgesUnlocked []string `json:"badges_unlocked"`
}

// AwardPoints credits the fixed amount for req.Kind, runs the badge checks the kind triggers
// and commits all of it atomically. Notifications go out after commit.
func (e *Engine) AwardPoints(ctx context.Context, req AwardRequest) (*AwardResult, error) {
	if req.AccountID == "" {
		return nil, ErrInvalidAccount
	}
	if !req.Kind.Requestable() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}
	description := cleanDescription(req.Description, req.Kind.Label())
	amount := req.Kind.Amount()

	var (
		result *AwardResult
		out    outcome
	)
	err := e.store.Transaction(ctx, func(tx Store) error {
		u, err := e.beginUnit(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		newTotal := u.account.TotalPoints + amount
		if err := u.credit(ctx, req.Kind, amount, description, req.ReferenceID, req.ReferenceType); err != nil {
			return err
		}
		u.enqueue(req.Kind.FollowUp())
		if err := u.commit(ctx); err != nil {
			return err
		}
		out = u.outcome()
		result = &AwardResult{
			PointsAwarded:  amount,
			NewTotal:       newTotal,
			TotalPoints:    u.account.TotalPoints,
			LevelUp:        out.levelUp,
			BadgesUnlocked: nonNil(u.unlocked),
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("award_points", req.AccountID, err)
	}
	e.afterCommit(ctx, out)
	return result, nil
}

// EnsureAccount creates the gamification state for an account if it does not exist yet.
func (e *Engine) EnsureAccount(ctx context.Context, accountID string) (*models.GamificationAccount, bool, error) {
	if accountID == "" {
		return nil, false, ErrInvalidAccount
	}
	now := e.calendar.Now()
	account := &models.GamificationAccount{
		AccountID: accountID,
		Level:     levelTable[0].Level,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := e.store.CreateAccount(ctx, account)
	if err != nil {
		return nil, false, e.fail("ensure_account", accountID, err)
	}
	if !created {
		existing, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, false, e.fail("ensure_account", accountID, err)
		}
		return existing, false, nil
	}
	e.logger.Info("gamification account created", zap.String("account_id", accountID))
	return account, true, nil
}

// ReconcileReport compares the stored totals with the ledger.
type ReconcileReport struct {
	AccountID     string `json:"account_id"`
	TotalPoints   int    `json:"total_points"`
	LedgerSum     int64  `json:"ledger_sum"`
	Level         int    `json:"level"`
	ExpectedLevel int    `json:"expected_level"`
	Consistent    bool   `json:"consistent"`
}

// Reconcile checks totalPoints == sum(transactions) and level == LevelFor(totalPoints).
func (e *Engine) Reconcile(ctx context.Context, accountID string) (*ReconcileReport, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	var report *ReconcileReport
	err := e.store.Transaction(ctx, func(tx Store) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		sum, err := tx.SumTransactions(ctx, accountID)
		if err != nil {
			return err
		}
		expected := 0
		if lvl, err := LevelFor(account.TotalPoints); err == nil {
			expected = lvl.Level
		}
		report = &ReconcileReport{
			AccountID:     accountID,
			TotalPoints:   account.TotalPoints,
			LedgerSum:     sum,
			Level:         account.Level,
			ExpectedLevel: expected,
			Consistent:    int64(account.TotalPoints) == sum && account.Level == expected,
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("reconcile", accountID, err)
	}
	if !report.Consistent {
		e.logger.Warn("gamification ledger mismatch",
			zap.String("account_id", accountID),
			zap.Int("total_points", report.TotalPoints),
			zap.Int64("ledger_sum", report.LedgerSum),
			zap.Int("level", report.Level),
			zap.Int("expected_level", report.ExpectedLevel))
	}
	return report, nil
}

// SyncCatalog mirrors the compiled badge catalog into the store.
func (e *Engine) SyncCatalog(ctx context.Context) error {
	if err := e.store.UpsertBadges(ctx, CatalogModels()); err != nil {
		return &PersistenceError{Op: "sync_catalog", Err: err}
	}
	return nil
}

// fail classifies, counts and logs an operation error.
func (e *Engine) fail(op, accountID string, err error) error {
	err = classify(op, accountID, err)
	metrics.EngineErrors.WithLabelValues(op, errorClass(err)).Inc()
	if _, ok := err.(*PersistenceError); ok {
		e.logger.Error("gamification operation failed",
			zap.String("op", op), zap.String("account_id", accountID), zap.Error(err))
	}
	return err
}

// afterCommit runs outside the transaction: metrics, cache invalidation, notifications.
func (e *Engine) afterCommit(ctx context.Context, out outcome) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range out.credits {
		metrics.AwardsTotal.WithLabelValues(string(c.kind)).Inc()
		metrics.PointsAwarded.WithLabelValues(string(c.kind)).Add(float64(c.amount))
	}
	for _, c := range out.badgeCategories {
		metrics.BadgesUnlocked.WithLabelValues(string(c)).Inc()
	}
	if out.invalidateStats {
		e.invalidateStats(ctx, out.accountID)
	}

	if out.levelUp != nil {
		lu := *out.levelUp
		metrics.LevelUps.WithLabelValues(strconv.Itoa(lu.NewLevel)).Inc()
		e.notify(ctx, "level_up", out.accountID, func() error {
			return e.notifier.NotifyLevelUp(ctx, out.accountID, lu.NewLevel, lu.LevelName)
		})
	}
	for _, name := range out.badges {
		name := name
		e.notify(ctx, "badge_unlocked", out.accountID, func() error {
			return e.notifier.NotifyBadgeUnlocked(ctx, out.accountID, name)
		})
	}
	if out.streakBonus > 0 {
		e.notify(ctx, "streak_bonus", out.accountID, func() error {
			return e.notifier.NotifyStreakBonus(ctx, out.accountID, out.streakDays, out.streakBonus)
		})
	}
}

// notify never lets a notifier error or panic reach the caller.
func (e *Engine) notify(ctx context.Context, event, accountID string, send func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Notifications.WithLabelValues(event, "panic").Inc()
			e.logger.Error("notifier panicked",
				zap.String("event", event), zap.String("account_id", accountID), zap.Any("panic", r))
		}
	}()
	if err := send(); err != nil {
		metrics.Notifications.WithLabelValues(event, "failed").Inc()
		e.logger.Warn("notification failed",
			zap.String("event", event), zap.String("account_id", accountID), zap.Error(err))
		return
	}
	metrics.Notifications.WithLabelValues(event, "requested").Inc()
}

func (e *Engine) invalidateStats(ctx context.Context, accountID string) {
	if e.cache == nil {
		return
	}
	e.cache.Delete(ctx, statsCachePrefix+accountID)
}

func (e *Engine) cachedStats(ctx context.Context, accountID string) (*UserStats, bool) {
	if e.cache == nil {
		return nil, false
	}
	b, ok := e.cache.Get(ctx, statsCachePrefix+accountID)
	if !ok {
		return nil, false
	}
	var stats UserStats
	if err := json.Unmarshal(b, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (e *Engine) storeStats(ctx context.Context, stats *UserStats) {
	if e.cache == nil {
		return
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return
	}
	e.cache.Set(ctx, statsCachePrefix+stats.AccountID, b, e.statsTTL)
}

// cleanDescription strips markup and stores the remaining text unescaped.
func cleanDescription(raw, fallback string) string {
	s := strings.TrimSpace(html.UnescapeString(descriptionPolicy.Sanitize(raw)))
	if s == "" {
		return fallback
	}
	if r := []rune(s); len(r) > maxDescriptionLen {
		s = string(r[:maxDescriptionLen])
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
