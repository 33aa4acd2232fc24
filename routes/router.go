package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/config"
	"github.com/mindhaven/mindhaven/controllers"
	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/middleware"
	"github.com/mindhaven/mindhaven/utils"
)

// Dependencies are the services the HTTP layer hands requests to.
type Dependencies struct {
	Engine *gamification.Engine
	// Inbox is optional; without it the notifications route is not registered.
	Inbox  controllers.Inbox
	Logger *zap.Logger
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Dependencies) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	// Access log goes to its own rolling file; panics are logged there too.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, utils.RotationFrom(cfg))
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, true))
	} else {
		r.Use(utils.RecoveryWithZap(logger, true))
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// wildcard origins cannot be combined with credentials
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if cfg.MetricsEnabled {
		r.Use(middleware.Prometheus())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	gc := controllers.NewGamificationController(deps.Engine, deps.Inbox, logger.Named("http"))
	ic := controllers.NewInternalController(deps.Engine, logger.Named("internal"))

	api := r.Group("/api/v1/gamification")
	api.GET("/levels", gc.ListLevels)
	api.GET("/badges", gc.ListBadges)

	me := api.Group("/me")
	me.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	me.GET("/stats", gc.MyStats)
	me.GET("/points", gc.MyPoints)
	me.GET("/badges", gc.MyBadges)
	me.POST("/check-in", gc.CheckIn)
	if gc.HasInbox() {
		me.GET("/notifications", gc.MyNotifications)
	}

	internal := r.Group("/internal/v1")
	internal.Use(middleware.InternalOnly(cfg.InternalAPIKey))
	internal.POST("/accounts", ic.EnsureAccount)
	internal.POST("/points", ic.AwardPoints)
	internal.POST("/accounts/:id/badges/:category/check", ic.CheckBadges)
	internal.GET("/accounts/:id/reconcile", ic.Reconcile)
	internal.POST("/streaks/reset", ic.ResetStreaks)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
