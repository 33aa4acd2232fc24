package gamification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/models"
	"github.com/mindhaven/mindhaven/repository"
)

var errBoom = errors.New("boom")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) nextDay() {
	c.advance(24 * time.Hour)
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *gamification.Engine
	store  *repository.MemoryStore
	clock  *clock
}

func newHarness(t *testing.T, opts ...gamification.Option) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	clk := newClock()
	all := append([]gamification.Option{
		gamification.WithCalendar(gamification.NewCalendar(time.UTC, clk.Now)),
	}, opts...)
	e := gamification.New(store, all...)
	if err := e.SyncCatalog(context.Background()); err != nil {
		t.Fatalf("sync catalog: %v", err)
	}
	return &harness{engine: e, store: store, clock: clk}
}

func (h *harness) account(t *testing.T, id string) {
	t.Helper()
	if _, _, err := h.engine.EnsureAccount(context.Background(), id); err != nil {
		t.Fatalf("ensure account %s: %v", id, err)
	}
}

func (h *harness) award(t *testing.T, id string, kind gamification.PointKind) *gamification.AwardResult {
	t.Helper()
	res, err := h.engine.AwardPoints(context.Background(), gamification.AwardRequest{AccountID: id, Kind: kind})
	if err != nil {
		t.Fatalf("award %s: %v", kind, err)
	}
	return res
}

func (h *harness) checkIn(t *testing.T, id string) *gamification.CheckInResult {
	t.Helper()
	res, err := h.engine.PerformDailyCheckIn(context.Background(), id)
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	return res
}

func (h *harness) get(t *testing.T, id string) *models.GamificationAccount {
	t.Helper()
	a, err := h.store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return a
}

func (h *harness) countKind(t *testing.T, id string, kind gamification.PointKind) int64 {
	t.Helper()
	counts, err := h.store.CountByKind(context.Background(), id)
	if err != nil {
		t.Fatalf("count by kind: %v", err)
	}
	return counts[kind]
}

func (h *harness) assertConsistent(t *testing.T, id string) {
	t.Helper()
	report, err := h.engine.Reconcile(context.Background(), id)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("inconsistent account: %+v", report)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

type notification struct {
	event     string
	accountID string
	level     int
	name      string
	days      int
	amount    int
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
	err    error
	panics bool
}

func (n *recordingNotifier) record(ev notification) error {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
	if n.panics {
		panic("notifier exploded")
	}
	return n.err
}

func (n *recordingNotifier) NotifyLevelUp(_ context.Context, accountID string, newLevel int, levelName string) error {
	return n.record(notification{event: "level_up", accountID: accountID, level: newLevel, name: levelName})
}

func (n *recordingNotifier) NotifyBadgeUnlocked(_ context.Context, accountID, badgeName string) error {
	return n.record(notification{event: "badge_unlocked", accountID: accountID, name: badgeName})
}

func (n *recordingNotifier) NotifyStreakBonus(_ context.Context, accountID string, days, bonusAmount int) error {
	return n.record(notification{event: "streak_bonus", accountID: accountID, days: days, amount: bonusAmount})
}

func (n *recordingNotifier) byEvent(event string) []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification
	for _, ev := range n.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

// flakyStore fails every AppendTransaction of one kind.
type flakyStore struct {
	gamification.Store
	failOn gamification.PointKind
}

func (s *flakyStore) Transaction(ctx context.Context, fn func(tx gamification.Store) error) error {
	return s.Store.Transaction(ctx, func(tx gamification.Store) error {
		return fn(&flakyStore{Store: tx, failOn: s.failOn})
	})
}

func (s *flakyStore) AppendTransaction(ctx context.Context, txn *models.PointTransaction) error {
	if gamification.PointKind(txn.Kind) == s.failOn {
		return errBoom
	}
	return s.Store.AppendTransaction(ctx, txn)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	return b, ok
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

func (c *mapCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.deletes++
	c.mu.Unlock()
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
