package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/gamification"
)

const resetLockTTL = 10 * time.Minute

// StreakResetter is the maintenance entry point the job drives.
type StreakResetter interface {
	ResetExpiredStreaks(ctx context.Context) (*gamification.ResetResult, error)
}

// Locker grants a short exclusive lease so only one instance runs the job per day.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// StreakResetJob runs ResetExpiredStreaks once a day at a fixed wall-clock time in the
// calendar's location.
type StreakResetJob struct {
	resetter StreakResetter
	calendar gamification.Calendar
	hour     int
	minute   int
	locker   Locker
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStreakResetJob parses at ("HH:MM"). locker may be nil on a single instance.
func NewStreakResetJob(resetter StreakResetter, calendar gamification.Calendar, at string, locker Locker, logger *zap.Logger) (*StreakResetJob, error) {
	hour, minute, err := ParseTimeOfDay(at)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreakResetJob{
		resetter: resetter,
		calendar: calendar,
		hour:     hour,
		minute:   minute,
		locker:   locker,
		logger:   logger,
		stopChan: make(chan struct{}),
	}, nil
}

// ParseTimeOfDay reads "HH:MM" in 24h form.
func ParseTimeOfDay(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun is the first scheduled instant strictly after t.
func (j *StreakResetJob) NextRun(t time.Time) time.Time {
	loc := j.calendar.Location()
	local := t.In(loc)
	y, m, d := local.Date()
	next := time.Date(y, m, d, j.hour, j.minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(y, m, d+1, j.hour, j.minute, 0, 0, loc)
	}
	return next
}

// Start launches the scheduling goroutine.
func (j *StreakResetJob) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		for {
			next := j.NextRun(j.calendar.Now())
			j.logger.Info("streak reset scheduled", zap.Time("at", next))
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				ctx, cancel := context.WithTimeout(context.Background(), resetLockTTL)
				_, _ = j.RunOnce(ctx)
				cancel()
			case <-j.stopChan:
				timer.Stop()
				return
			}
		}
	}()
}

// Stop ends the scheduler and waits for a running reset to finish.
func (j *StreakResetJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	j.wg.Wait()
}

// RunOnce performs one reset. It returns a nil result when another instance holds
// today's lock.
func (j *StreakResetJob) RunOnce(ctx context.Context) (*gamification.ResetResult, error) {
	if j.locker != nil {
		key := "lock:streak-reset:" + j.calendar.Today()
		release, ok, err := j.locker.TryLock(ctx, key, resetLockTTL)
		if err != nil {
			// run anyway; the reset is idempotent
			j.logger.Warn("streak reset lock unavailable", zap.Error(err))
		} else if !ok {
			j.logger.Info("streak reset already running elsewhere", zap.String("lock", key))
			return nil, nil
		} else {
			defer release()
		}
	}

	start := time.Now()
	res, err := j.resetter.ResetExpiredStreaks(ctx)
	if err != nil {
		j.logger.Error("streak reset failed", zap.Error(err))
		return res, err
	}
	j.logger.Info("streak reset finished",
		zap.Int("users_reset", res.UsersReset),
		zap.Int("total_processed", res.TotalProcessed),
		zap.Duration("took", time.Since(start)))
	return res, nil
}
