package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mindhaven/mindhaven/gamification"
)

var _ gamification.Notifier = (*Dispatcher)(nil)

type memorySink struct {
	mu       sync.Mutex
	events   []*Event
	failures int
	calls    int
}

func (s *memorySink) Deliver(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) snapshot() ([]*Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...), s.calls
}

type blockingSink struct {
	started chan struct{}
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, _ *Event) error {
	s.started <- struct{}{}
	<-s.release
	return nil
}

func stop(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDispatcherDeliversEvents(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(sink, Options{Workers: 2, QueueSize: 10})
	ctx := context.Background()

	if err := d.NotifyLevelUp(ctx, "acc-1", 2, "Explorador"); err != nil {
		t.Fatal(err)
	}
	if err := d.NotifyBadgeUnlocked(ctx, "acc-1", "Primer Paso"); err != nil {
		t.Fatal(err)
	}
	if err := d.NotifyStreakBonus(ctx, "acc-1", 7, 50); err != nil {
		t.Fatal(err)
	}
	stop(t, d)

	events, _ := sink.snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	byType := map[EventType]*Event{}
	for _, ev := range events {
		byType[ev.Type] = ev
		if ev.ID == "" || ev.AccountID != "acc-1" || ev.CreatedAt.IsZero() {
			t.Fatalf("incomplete event %+v", ev)
		}
	}
	if ev := byType[EventLevelUp]; ev == nil || !strings.Contains(ev.Body, "Explorador") {
		t.Fatalf("unexpected level up event %+v", ev)
	}
	if ev := byType[EventStreakBonus]; ev == nil || ev.Data["days"] != 7 || ev.Data["bonus"] != 50 {
		t.Fatalf("unexpected streak event %+v", ev)
	}
}

func TestDispatcherRetriesFailedDelivery(t *testing.T) {
	sink := &memorySink{failures: 2}
	d := NewDispatcher(sink, Options{Workers: 1, MaxAttempts: 3, Backoff: time.Millisecond})
	if err := d.NotifyBadgeUnlocked(context.Background(), "acc-1", "Apreciado"); err != nil {
		t.Fatal(err)
	}
	stop(t, d)

	events, calls := sink.snapshot()
	if len(events) != 1 || calls != 3 {
		t.Fatalf("expected delivery on third attempt, got %d events after %d calls", len(events), calls)
	}
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	sink := &memorySink{failures: 10}
	d := NewDispatcher(sink, Options{Workers: 1, MaxAttempts: 2, Backoff: time.Millisecond})
	if err := d.NotifyBadgeUnlocked(context.Background(), "acc-1", "Apreciado"); err != nil {
		t.Fatal(err)
	}
	stop(t, d)

	events, calls := sink.snapshot()
	if len(events) != 0 || calls != 2 {
		t.Fatalf("expected 2 failed attempts, got %d events after %d calls", len(events), calls)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(sink, Options{Workers: 1, QueueSize: 1})
	ctx := context.Background()

	if err := d.NotifyBadgeUnlocked(ctx, "acc-1", "a"); err != nil {
		t.Fatal(err)
	}
	<-sink.started
	if err := d.NotifyBadgeUnlocked(ctx, "acc-1", "b"); err != nil {
		t.Fatal(err)
	}
	if err := d.NotifyBadgeUnlocked(ctx, "acc-1", "c"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	go func() {
		for range sink.started {
		}
	}()
	close(sink.release)
	stop(t, d)
	close(sink.started)
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewDispatcher(&memorySink{}, Options{})
	stop(t, d)
	if err := d.NotifyLevelUp(context.Background(), "acc-1", 3, "Aprendiz"); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	// a second stop is a no-op
	stop(t, d)
}

func TestInboxKey(t *testing.T) {
	if got := InboxKey("acc-1"); got != "notifications:acc-1" {
		t.Fatalf("unexpected key %s", got)
	}
}
