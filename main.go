package main

import (
	"context"
	"time"

	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/config"
	"github.com/mindhaven/mindhaven/controllers"
	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/jobs"
	"github.com/mindhaven/mindhaven/metrics"
	"github.com/mindhaven/mindhaven/notify"
	"github.com/mindhaven/mindhaven/repository"
	"github.com/mindhaven/mindhaven/routes"
	"github.com/mindhaven/mindhaven/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	logger := utils.L()
	defer func() { _ = logger.Sync() }()

	var store gamification.Store
	if cfg.DBDriver == "memory" {
		logger.Warn("using in-memory store; state is lost on restart")
		store = repository.NewMemoryStore()
	} else {
		store = repository.NewGormStore(config.InitDatabase(repository.Models()...))
	}

	rc := utils.GetRedis()

	var sink notify.Sink = notify.LogSink{Logger: logger.Named("notify")}
	var inbox controllers.Inbox
	if cfg.NotifySink == "redis" {
		if rc != nil {
			rs := notify.NewRedisSink(rc, cfg.NotifyChannel)
			sink, inbox = rs, rs
		} else {
			logger.Warn("notify sink redis requested but redis is not configured; logging notifications instead")
		}
	}
	dispatcher := notify.NewDispatcher(sink, notify.Options{
		Workers:     cfg.NotifyWorkers,
		QueueSize:   cfg.NotifyQueueSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Logger:      logger.Named("notify"),
	})

	opts := []gamification.Option{
		gamification.WithCalendar(gamification.NewCalendar(cfg.Location(), nil)),
		gamification.WithNotifier(dispatcher),
		gamification.WithLogger(logger.Named("gamification")),
	}
	if rc != nil {
		opts = append(opts, gamification.WithStatsCache(utils.NewRedisCache(rc, logger.Named("cache")), cfg.StatsCacheTTL()))
	}
	engine := gamification.New(store, opts...)

	syncCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.SyncCatalog(syncCtx); err != nil {
		cancel()
		logger.Fatal("sync badge catalog", zap.Error(err))
	}
	cancel()

	if cfg.MetricsEnabled {
		metrics.InitPrometheus()
	}

	var resetJob *jobs.StreakResetJob
	if cfg.StreakResetEnabled {
		var locker jobs.Locker
		if rc != nil {
			locker = utils.NewRedisLocker(rc, logger.Named("lock"))
		}
		job, err := jobs.NewStreakResetJob(engine, engine.Calendar(), cfg.StreakResetAt, locker, logger.Named("jobs"))
		if err != nil {
			logger.Fatal("streak reset job", zap.Error(err))
		}
		resetJob = job
		resetJob.Start()
	}

	r := routes.SetupRouter(cfg, routes.Dependencies{Engine: engine, Inbox: inbox, Logger: logger})

	srv := utils.NewServer(":"+cfg.AppPort, r, logger.Named("http"))
	if rc != nil {
		srv.OnShutdown("redis", func(context.Context) error { return rc.Close() })
	}
	srv.OnShutdown("notify", dispatcher.Stop)
	if resetJob != nil {
		srv.OnShutdown("streak-reset", func(context.Context) error {
			resetJob.Stop()
			return nil
		})
	}

	logger.Info("starting server", zap.String("port", cfg.AppPort))
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
