package gamification

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/metrics"
	"github.com/mindhaven/mindhaven/models"
)

const resetBatchSize = 500

// CheckInResult reports a daily check-in. PointsAwarded is the daily login amount;
// StreakBonus is the milestone bonus credited on top of it, if any.
type CheckInResult struct {
	IsNewCheckIn   bool     `json:"is_new_check_in"`
	Day            string   `json:"day"`
	CurrentStreak  int      `json:"current_streak"`
	LongestStreak  int      `json:"longest_streak"`
	PointsAwarded  int      `json:"points_awarded"`
	StreakBonus    int      `json:"streak_bonus"`
	TotalPoints    int      `json:"total_points"`
	LevelUp        *LevelUp `json:"level_up"`
	BadgesUnlocked []string `json:"badges_unlocked"`
}

// PerformDailyCheckIn records today's check-in. A second call on the same day returns
// IsNewCheckIn=false and awards nothing.
func (e *Engine) PerformDailyCheckIn(ctx context.Context, accountID string) (*CheckInResult, error) {
	if accountID == "" {
		return nil, ErrInvalidAccount
	}
	today := e.calendar.Today()
	exists, err := e.store.HasCheckIn(ctx, accountID, today)
	if err != nil {
		return nil, e.fail("check_in", accountID, err)
	}
	if exists {
		account, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, e.fail("check_in", accountID, err)
		}
		metrics.CheckIns.WithLabelValues("repeat").Inc()
		return repeatCheckIn(account, today), nil
	}

	var (
		result *CheckInResult
		out    outcome
	)
	err = e.store.Transaction(ctx, func(tx Store) error {
		u, err := e.beginUnit(ctx, tx, accountID)
		if err != nil {
			return err
		}
		// the day follows the unit's clock so the check-in row and its credits agree
		today := e.calendar.Day(u.now)
		yesterday, err := PreviousDay(today)
		if err != nil {
			return err
		}
		// another request may have checked in between the fast path and the row lock
		already, err := tx.HasCheckIn(ctx, accountID, today)
		if err != nil {
			return err
		}
		if already {
			result = repeatCheckIn(u.account, today)
			return nil
		}
		continued, err := tx.HasCheckIn(ctx, accountID, yesterday)
		if err != nil {
			return err
		}

		streak := 1
		if continued {
			streak = u.account.CurrentStreak + 1
		}
		longest := u.account.LongestStreak
		if streak > longest {
			longest = streak
		}

		err = tx.InsertCheckIn(ctx, &models.DailyCheckIn{
			AccountID: accountID,
			Day:       today,
			CreatedAt: u.now,
		})
		if errors.Is(err, ErrDuplicate) {
			result = repeatCheckIn(u.account, today)
			return nil
		}
		if err != nil {
			return err
		}

		u.account.CurrentStreak = streak
		u.account.LongestStreak = longest
		u.account.LastCheckInDay = today
		u.dirty = true

		daily := KindDailyLogin.Amount()
		if err := u.credit(ctx, KindDailyLogin, daily, KindDailyLogin.Label(), today, "check_in"); err != nil {
			return err
		}
		bonus := 0
		if kind, ok := StreakBonusFor(streak); ok {
			bonus = kind.Amount()
			if err := u.credit(ctx, kind, bonus, kind.Label(), today, "check_in"); err != nil {
				return err
			}
		}
		u.enqueue(CategorySpecial)
		if err := u.commit(ctx); err != nil {
			return err
		}

		out = u.outcome()
		if bonus > 0 {
			out.streakDays = streak
			out.streakBonus = bonus
		}
		result = &CheckInResult{
			IsNewCheckIn:   true,
			Day:            today,
			CurrentStreak:  streak,
			LongestStreak:  longest,
			PointsAwarded:  daily,
			StreakBonus:    bonus,
			TotalPoints:    u.account.TotalPoints,
			LevelUp:        out.levelUp,
			BadgesUnlocked: nonNil(u.unlocked),
		}
		return nil
	})
	if err != nil {
		return nil, e.fail("check_in", accountID, err)
	}
	if !result.IsNewCheckIn {
		metrics.CheckIns.WithLabelValues("repeat").Inc()
		return result, nil
	}
	if result.CurrentStreak == 1 {
		metrics.CheckIns.WithLabelValues("started").Inc()
	} else {
		metrics.CheckIns.WithLabelValues("continued").Inc()
	}
	e.afterCommit(ctx, out)
	return result, nil
}

func repeatCheckIn(account *models.GamificationAccount, day string) *CheckInResult {
	return &CheckInResult{
		IsNewCheckIn:   false,
		Day:            day,
		CurrentStreak:  account.CurrentStreak,
		LongestStreak:  account.LongestStreak,
		TotalPoints:    account.TotalPoints,
		BadgesUnlocked: []string{},
	}
}

// ResetResult summarizes one maintenance run.
type ResetResult struct {
	UsersReset     int `json:"users_reset"`
	TotalProcessed int `json:"total_processed"`
	Failed         int `json:"failed"`
}

// ResetExpiredStreaks zeroes the current streak of every account that checked in neither
// yesterday nor today. Longest streaks are untouched. Running it again finds nothing to do.
func (e *Engine) ResetExpiredStreaks(ctx context.Context) (*ResetResult, error) {
	today := e.calendar.Today()
	yesterday := e.calendar.Yesterday()
	res := &ResetResult{}

	after := ""
	for {
		ids, err := e.store.ListStreakingAccounts(ctx, after, resetBatchSize)
		if err != nil {
			return res, e.fail("reset_streaks", "", err)
		}
		for _, id := range ids {
			res.TotalProcessed++
			reset, err := e.resetStreak(ctx, id, today, yesterday)
			if err != nil {
				res.Failed++
				e.logger.Warn("streak reset failed", zap.String("account_id", id), zap.Error(err))
				continue
			}
			if reset {
				res.UsersReset++
				e.invalidateStats(ctx, id)
			}
		}
		if len(ids) < resetBatchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	metrics.StreakResets.Add(float64(res.UsersReset))
	e.logger.Info("expired streaks reset",
		zap.String("day", today),
		zap.Int("users_reset", res.UsersReset),
		zap.Int("total_processed", res.TotalProcessed),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (e *Engine) resetStreak(ctx context.Context, accountID, today, yesterday string) (bool, error) {
	reset := false
	err := e.store.Transaction(ctx, func(tx Store) error {
		account, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.CurrentStreak == 0 {
			return nil
		}
		for _, day := range []string{yesterday, today} {
			ok, err := tx.HasCheckIn(ctx, accountID, day)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
		account.CurrentStreak = 0
		account.UpdatedAt = e.calendar.Now()
		if err := tx.SaveAccount(ctx, account); err != nil {
			return err
		}
		reset = true
		return nil
	})
	return reset, err
}
