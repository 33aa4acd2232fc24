package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/mindhaven/mindhaven/models"
)

// unitOfWork is everything one award does inside a single transaction: credits,
// the badge checks they trigger, and the badge rewards those checks credit in turn.
// Nothing is written to the account row until commit.
type unitOfWork struct {
	e       *Engine
	tx      Store
	account *models.GamificationAccount
	before  LevelInfo
	now     time.Time

	queue  []BadgeCategory
	queued map[BadgeCategory]bool

	credits            []credit
	unlocked           []string
	unlockedCategories []BadgeCategory
	kindCounts         map[PointKind]int64
	dirty              bool
}

type credit struct {
	kind   PointKind
	amount int
}

// LevelUp describes a level change produced by one call.
type LevelUp struct {
	PreviousLevel int    `json:"previous_level"`
	NewLevel      int    `json:"new_level"`
	LevelName     string `json:"level_name"`
}

// outcome is what survives the transaction for post-commit work.
type outcome struct {
	accountID       string
	credits         []credit
	levelUp         *LevelUp
	badges          []string
	badgeCategories []BadgeCategory
	streakDays      int
	streakBonus     int
	invalidateStats bool
}

// beginUnit locks the account row; every later read and write in tx is serialized behind it.
func (e *Engine) beginUnit(ctx context.Context, tx Store, accountID string) (*unitOfWork, error) {
	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	before, err := LevelFor(account.TotalPoints)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}
	return &unitOfWork{
		e:       e,
		tx:      tx,
		account: account,
		before:  before,
		now:     e.calendar.Now(),
		queued:  make(map[BadgeCategory]bool),
	}, nil
}

// credit appends a transaction row and moves the in-memory total and level.
func (u *unitOfWork) credit(ctx context.Context, kind PointKind, amount int, description, referenceID, referenceType string) error {
	if amount <= 0 {
		return nil
	}
	total := u.account.TotalPoints + amount
	level, err := LevelFor(total)
	if err != nil {
		return err
	}
	txn := &models.PointTransaction{
		ID:            u.e.newID(),
		AccountID:     u.account.AccountID,
		Amount:        amount,
		Kind:          string(kind),
		Description:   description,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		CreatedAt:     u.now,
	}
	if err := u.tx.AppendTransaction(ctx, txn); err != nil {
		return fmt.Errorf("append %s transaction: %w", kind, err)
	}
	u.account.TotalPoints = total
	u.account.Level = level.Level
	u.dirty = true
	u.kindCounts = nil
	u.credits = append(u.credits, credit{kind: kind, amount: amount})
	return nil
}

func (u *unitOfWork) enqueue(categories ...BadgeCategory) {
	for _, c := range categories {
		if c == "" || u.queued[c] {
			continue
		}
		u.queued[c] = true
		u.queue = append(u.queue, c)
	}
}

// drain evaluates the queued categories in order. Badge rewards credited here queue nothing,
// so one pass is enough.
func (u *unitOfWork) drain(ctx context.Context) error {
	for len(u.queue) > 0 {
		c := u.queue[0]
		u.queue = u.queue[1:]
		delete(u.queued, c)
		if err := u.evaluate(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// commit drains pending checks and writes the account row once.
func (u *unitOfWork) commit(ctx context.Context) error {
	if err := u.drain(ctx); err != nil {
		return err
	}
	if !u.dirty {
		return nil
	}
	u.account.UpdatedAt = u.now
	if err := u.tx.SaveAccount(ctx, u.account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (u *unitOfWork) levelUp() *LevelUp {
	after := levelTable[levelIndex(u.account.TotalPoints)]
	if after.Level <= u.before.Level {
		return nil
	}
	return &LevelUp{
		PreviousLevel: u.before.Level,
		NewLevel:      after.Level,
		LevelName:     after.Name,
	}
}

func (u *unitOfWork) outcome() outcome {
	return outcome{
		accountID:       u.account.AccountID,
		credits:         u.credits,
		levelUp:         u.levelUp(),
		badges:          u.unlocked,
		badgeCategories: u.unlockedCategories,
		invalidateStats: u.dirty || len(u.unlocked) > 0,
	}
}
