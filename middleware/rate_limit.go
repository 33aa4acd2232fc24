package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/mindhaven/mindhaven/utils"
)

const limiterIdleTTL = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one token bucket per caller. Buckets idle for longer than ttl are
// swept on access, at most once per ttl.
type limiterStore struct {
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func newLimiterStore(perMinute int, ttl time.Duration, now func() time.Time) *limiterStore {
	perMinute = max(perMinute, 1)
	return &limiterStore{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   max(perMinute/2, 1),
		ttl:     ttl,
		now:     now,
		entries: make(map[string]*limiterEntry),
	}
}

// take spends one token for key. It returns zero when the request may proceed, otherwise
// how long until a token is available.
func (s *limiterStore) take(key string) time.Duration {
	now := s.now()

	s.mu.Lock()
	if now.Sub(s.lastSweep) >= s.ttl {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	s.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return s.ttl
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return wait
	}
	return 0
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RateLimitMiddleware applies a token bucket per authenticated account, falling back to
// the client IP for anonymous requests. Rejections carry Retry-After in whole seconds.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	return rateLimit(newLimiterStore(perMinute, limiterIdleTTL, time.Now))
}

func rateLimit(store *limiterStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if accountID := AccountID(ctx); accountID != "" {
			key = "acc:" + accountID
		}
		if wait := store.take(key); wait > 0 {
			ctx.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			utils.Error(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}
