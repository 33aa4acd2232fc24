package gamification

import (
	"context"

	"github.com/mindhaven/mindhaven/models"
)

const (
	recentTransactions  = 10
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// UserStats is the profile summary of an account.
type UserStats struct {
	AccountID          string                    `json:"account_id"`
	TotalPoints        int                       `json:"total_points"`
	CurrentLevel       int                       `json:"current_level"`
	LevelName          string                    `json:"level_name"`
	PointsToNextLevel  int                       `json:"points_to_next_level"`
	ProgressPercent    float64                   `json:"progress_percent"`
	CurrentStreak      int                       `json:"current_streak"`
	LongestStreak      int                       `json:"longest_streak"`
	BadgesCount        int64                     `json:"badges_count"`
	RecentTransactions []models.PointTransaction `json:"recent_transactions"`
}

// GetUserStats returns the account summary, served from cache when possible.
func (e *Engine) GetUserStats(ctx context.Context, accountID string) (*UserStats, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	if stats, ok := e.cachedStats(ctx, accountID); ok {
		return stats, nil
	}

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, e.fail("user_stats", accountID, err)
	}
	level, err := LevelFor(account.TotalPoints)
	if err != nil {
		return nil, e.fail("user_stats", accountID, err)
	}
	toNext, _ := PointsToNextLevel(account.TotalPoints)
	progress, _ := ProgressPercent(account.TotalPoints)

	badges, err := e.store.CountAccountBadges(ctx, accountID)
	if err != nil {
		return nil, e.fail("user_stats", accountID, err)
	}
	recent, _, err := e.store.ListTransactions(ctx, accountID, recentTransactions, 0)
	if err != nil {
		return nil, e.fail("user_stats", accountID, err)
	}
	if recent == nil {
		recent = []models.PointTransaction{}
	}

	stats := &UserStats{
		AccountID:          accountID,
		TotalPoints:        account.TotalPoints,
		CurrentLevel:       level.Level,
		LevelName:          level.Name,
		PointsToNextLevel:  toNext,
		ProgressPercent:    progress,
		CurrentStreak:      account.CurrentStreak,
		LongestStreak:      account.LongestStreak,
		BadgesCount:        badges,
		RecentTransactions: recent,
	}
	e.storeStats(ctx, stats)
	return stats, nil
}

// PointHistory is one page of an account's ledger, newest first.
type PointHistory struct {
	Transactions []models.PointTransaction `json:"transactions"`
	Total        int64                     `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
}

// GetPointHistory pages through the ledger. Limit defaults to 20 and is capped at 100.
func (e *Engine) GetPointHistory(ctx context.Context, accountID string, limit, offset int) (*PointHistory, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, e.fail("point_history", accountID, err)
	}
	txns, total, err := e.store.ListTransactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, e.fail("point_history", accountID, err)
	}
	if txns == nil {
		txns = []models.PointTransaction{}
	}
	return &PointHistory{Transactions: txns, Total: total, Limit: limit, Offset: offset}, nil
}

// ListBadges returns the badge catalog as stored.
func (e *Engine) ListBadges(ctx context.Context) ([]models.Badge, error) {
	badges, err := e.store.ListBadges(ctx)
	if err != nil {
		return nil, e.fail("list_badges", "", err)
	}
	return badges, nil
}

// ListAccountBadges returns the badges an account owns, oldest unlock first.
func (e *Engine) ListAccountBadges(ctx context.Context, accountID string) ([]models.AccountBadge, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	if _, err := e.store.GetAccount(ctx, accountID); err != nil {
		return nil, e.fail("account_badges", accountID, err)
	}
	owned, err := e.store.ListAccountBadges(ctx, accountID)
	if err != nil {
		return nil, e.fail("account_badges", accountID, err)
	}
	if owned == nil {
		owned = []models.AccountBadge{}
	}
	return owned, nil
}
