package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/notify"
	"github.com/mindhaven/mindhaven/utils"
)

// Inbox lists an account's recent notifications.
type Inbox interface {
	Inbox(ctx context.Context, accountID string, limit int) ([]notify.Event, error)
}

// GamificationController serves the member-facing gamification endpoints.
type GamificationController struct {
	engine *gamification.Engine
	inbox  Inbox
	logger *zap.Logger
}

// NewGamificationController creates a controller. inbox may be nil when notifications
// are not kept anywhere readable.
func NewGamificationController(engine *gamification.Engine, inbox Inbox, logger *zap.Logger) *GamificationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GamificationController{engine: engine, inbox: inbox, logger: logger}
}

// HasInbox reports whether the notifications endpoint can be served.
func (g *GamificationController) HasInbox() bool {
	return g.inbox != nil
}

// ListLevels returns the level table.
func (g *GamificationController) ListLevels(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"levels": gamification.Levels()})
}

// ListBadges returns the badge catalog.
func (g *GamificationController) ListBadges(ctx *gin.Context) {
	badges, err := g.engine.ListBadges(ctx.Request.Context())
	if err != nil {
		utils.EngineError(ctx, g.logger, err)
		return
	}
	utils.Success(ctx, gin.H{"badges": badges})
}

// MyStats returns the caller's profile summary.
func (g *GamificationController) MyStats(ctx *gin.Context) {
	accountID, ok := requireAccount(ctx)
	if !ok {
		return
	}
	stats, err := g.engine.GetUserStats(ctx.Request.Context(), accountID)
	if err != nil {
		utils.EngineError(ctx, g.logger, err)
		return
	}
	utils.Success(ctx, stats)
}

// MyPoints pages through the caller's point history.
func (g *GamificationController) MyPoints(ctx *gin.Context) {
	accountID, ok := requireAccount(ctx)
	if !ok {
		return
	}
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid limit")
		return
	}
	offset, err := queryInt(ctx, "offset", 0)
	if err != nil || offset < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid offset")
		return
	}
	history, err := g.engine.GetPointHistory(ctx.Request.Context(), accountID, limit, offset)
	if err != nil {
		utils.EngineError(ctx, g.logger, err)
		return
	}
	utils.Success(ctx, history)
}

// MyBadges returns the badges the caller owns.
func (g *GamificationController) MyBadges(ctx *gin.Context) {
	accountID, ok := requireAccount(ctx)
	if !ok {
		return
	}
	owned, err := g.engine.ListAccountBadges(ctx.Request.Context(), accountID)
	if err != nil {
		utils.EngineError(ctx, g.logger, err)
		return
	}
	utils.Success(ctx, gin.H{"badges": owned})
}

// CheckIn records the caller's daily check-in.
func (g *GamificationController) CheckIn(ctx *gin.Context) {
	accountID, ok := requireAccount(ctx)
	if !ok {
		return
	}
	result, err := g.engine.PerformDailyCheckIn(ctx.Request.Context(), accountID)
	if err != nil {
		utils.EngineError(ctx, g.logger, err)
		return
	}
	utils.Success(ctx, result)
}

// MyNotifications returns the caller's latest notifications, newest first.
func (g *GamificationController) MyNotifications(ctx *gin.Context) {
	accountID, ok := requireAccount(ctx)
	if !ok {
		return
	}
	if g.inbox == nil {
		utils.Error(ctx, http.StatusNotFound, 40420, "notifications are not enabled")
		return
	}
	limit, err := queryInt(ctx, "limit", 20)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid limit")
		return
	}
	events, err := g.inbox.Inbox(ctx.Request.Context(), accountID, limit)
	if err != nil {
		g.logger.Warn("read inbox failed", zap.String("account_id", accountID), zap.Error(err))
		utils.Error(ctx, http.StatusServiceUnavailable, 50320, "notifications unavailable")
		return
	}
	utils.Success(ctx, gin.H{"notifications": events})
}

func queryInt(ctx *gin.Context, name string, def int) (int, error) {
	raw := ctx.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
