package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PointsAwarded counts points credited per transaction kind.
	PointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_points_awarded_total",
			Help: "Total points credited, by transaction kind",
		},
		[]string{"kind"},
	)
	// AwardsTotal counts committed point transactions per kind.
	AwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_awards_total",
			Help: "Total committed point transactions, by kind",
		},
		[]string{"kind"},
	)
	BadgesUnlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_badges_unlocked_total",
			Help: "Total badges unlocked, by category",
		},
		[]string{"category"},
	)
	LevelUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Total level ups, by reached level",
		},
		[]string{"level"},
	)
	CheckIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_check_ins_total",
			Help: "Daily check-in calls, by outcome",
		},
		[]string{"outcome"},
	)
	StreakResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_streak_resets_total",
			Help: "Total streaks reset by the maintenance job",
		},
	)
	// EngineErrors counts failed engine operations by operation and error class.
	EngineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_errors_total",
			Help: "Failed engine operations",
		},
		[]string{"op", "class"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_notifications_total",
			Help: "Notification requests, by event type and outcome",
		},
		[]string{"event", "outcome"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

var registerOnce sync.Once

// InitPrometheus registers the collectors with the default registry. Safe to call more than once.
func InitPrometheus() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PointsAwarded,
			AwardsTotal,
			BadgesUnlocked,
			LevelUps,
			CheckIns,
			StreakResets,
			EngineErrors,
			Notifications,
			HTTPRequestsTotal,
			HTTPRequestDuration,
		)
	})
}
