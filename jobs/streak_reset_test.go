package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mindhaven/mindhaven/gamification"
)

type countingResetter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingResetter) ResetExpiredStreaks(context.Context) (*gamification.ResetResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &gamification.ResetResult{UsersReset: 1, TotalProcessed: 2}, nil
}

type mapLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	err   error
	taken []string
}

func (l *mapLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	l.taken = append(l.taken, key)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

func fixedCalendar(loc *time.Location, now time.Time) gamification.Calendar {
	return gamification.NewCalendar(loc, func() time.Time { return now })
}

func TestParseTimeOfDay(t *testing.T) {
	h, m, err := ParseTimeOfDay("00:05")
	if err != nil || h != 0 || m != 5 {
		t.Fatalf("got %d:%d %v", h, m, err)
	}
	for _, bad := range []string{"", "24:00", "7", "12:60"} {
		if _, _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNextRun(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*3600)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // 09:00 local
	job, err := NewStreakResetJob(&countingResetter{}, fixedCalendar(loc, now), "00:05", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	next := job.NextRun(now)
	want := time.Date(2026, 3, 3, 0, 5, 0, 0, loc)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	// exactly at the scheduled instant the run moves to the next day
	if again := job.NextRun(want); !again.Equal(want.AddDate(0, 0, 1)) {
		t.Fatalf("expected the following day, got %v", again)
	}
	early := time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC) // 00:00 local
	if got := job.NextRun(early); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRunOnceHoldsDailyLock(t *testing.T) {
	resetter := &countingResetter{}
	locker := &mapLocker{held: map[string]bool{"lock:streak-reset:2026-03-02": true}}
	job, err := NewStreakResetJob(resetter, fixedCalendar(time.UTC, time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)), "00:05", locker, nil)
	if err != nil {
		t.Fatal(err)
	}

	res, err := job.RunOnce(context.Background())
	if err != nil || res != nil || resetter.calls != 0 {
		t.Fatalf("expected skip while locked, got %+v %v calls=%d", res, err, resetter.calls)
	}

	locker.held = map[string]bool{}
	res, err = job.RunOnce(context.Background())
	if err != nil || res == nil || res.UsersReset != 1 || resetter.calls != 1 {
		t.Fatalf("expected a run, got %+v %v calls=%d", res, err, resetter.calls)
	}
	if len(locker.held) != 0 {
		t.Fatalf("lock must be released, still held: %v", locker.held)
	}
}

func TestRunOnceProceedsWhenLockerFails(t *testing.T) {
	resetter := &countingResetter{}
	locker := &mapLocker{err: errors.New("redis down")}
	job, _ := NewStreakResetJob(resetter, gamification.NewCalendar(nil, nil), "01:00", locker, nil)

	if _, err := job.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if resetter.calls != 1 {
		t.Fatalf("expected the reset to run, calls=%d", resetter.calls)
	}
}

func TestRunOnceReportsResetError(t *testing.T) {
	boom := errors.New("db down")
	job, _ := NewStreakResetJob(&countingResetter{err: boom}, gamification.NewCalendar(nil, nil), "01:00", nil, nil)
	if _, err := job.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}

func TestStopWithoutRun(t *testing.T) {
	job, _ := NewStreakResetJob(&countingResetter{}, gamification.NewCalendar(nil, nil), "03:30", nil, nil)
	job.Start()
	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
