package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/metrics"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: dispatcher stopped")
)

// Sink delivers one event to its channel.
type Sink interface {
	Deliver(ctx context.Context, ev *Event) error
}

// Options tunes a Dispatcher. Zero values pick the defaults.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Dispatcher queues events and delivers them from a worker pool, retrying failed
// deliveries with exponential backoff. It implements gamification.Notifier.
type Dispatcher struct {
	sink        Sink
	logger      *zap.Logger
	workers     int
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration

	jobQueue chan *Event
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	d := &Dispatcher{
		sink:        sink,
		logger:      opts.Logger,
		workers:     opts.Workers,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		timeout:     opts.Timeout,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.workers <= 0 {
		d.workers = 4
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 3
	}
	if d.backoff <= 0 {
		d.backoff = 200 * time.Millisecond
	}
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	d.jobQueue = make(chan *Event, queueSize)
	d.stopChan = make(chan struct{})

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands ev to the worker pool without blocking.
func (d *Dispatcher) Enqueue(ev *Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.jobQueue <- ev:
		return nil
	default:
		metrics.Notifications.WithLabelValues(string(ev.Type), "dropped").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) NotifyLevelUp(_ context.Context, accountID string, newLevel int, levelName string) error {
	return d.Enqueue(LevelUpEvent(accountID, newLevel, levelName))
}

func (d *Dispatcher) NotifyBadgeUnlocked(_ context.Context, accountID, badgeName string) error {
	return d.Enqueue(BadgeUnlockedEvent(accountID, badgeName))
}

func (d *Dispatcher) NotifyStreakBonus(_ context.Context, accountID string, days, bonusAmount int) error {
	return d.Enqueue(StreakBonusEvent(accountID, days, bonusAmount))
}

// Stop refuses new events, lets the workers drain the queue and waits for them
// until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.stopChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.jobQueue:
			d.process(ev)
		case <-d.stopChan:
			for {
				select {
				case ev := <-d.jobQueue:
					d.process(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(ev *Event) {
	wait := d.backoff
	var err error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.deliver(ctx, ev)
		cancel()
		if err == nil {
			metrics.Notifications.WithLabelValues(string(ev.Type), "delivered").Inc()
			return
		}
		if attempt < d.maxAttempts {
			d.logger.Debug("notification delivery retry",
				zap.String("event_id", ev.ID), zap.Int("attempt", attempt), zap.Error(err))
			time.Sleep(wait)
			wait *= 2
		}
	}
	metrics.Notifications.WithLabelValues(string(ev.Type), "undelivered").Inc()
	d.logger.Warn("notification dropped after retries",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("account_id", ev.AccountID),
		zap.Error(err))
}

// deliver shields the worker from a panicking sink.
func (d *Dispatcher) deliver(ctx context.Context, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("notify: sink panicked")
		}
	}()
	return d.sink.Deliver(ctx, ev)
}
