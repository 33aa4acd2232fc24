package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/gamification"
	"github.com/mindhaven/mindhaven/utils"
)

// InternalController exposes the engine to other platform services.
type InternalController struct {
	engine *gamification.Engine
	logger *zap.Logger
}

func NewInternalController(engine *gamification.Engine, logger *zap.Logger) *InternalController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InternalController{engine: engine, logger: logger}
}

type ensureAccountRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// EnsureAccount creates gamification state for a newly registered account.
func (i *InternalController) EnsureAccount(ctx *gin.Context) {
	var req ensureAccountRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	account, created, err := i.engine.EnsureAccount(ctx.Request.Context(), strings.TrimSpace(req.AccountID))
	if err != nil {
		utils.EngineError(ctx, i.logger, err)
		return
	}
	body := gin.H{"account": account, "created": created}
	if created {
		utils.Created(ctx, body)
		return
	}
	utils.Success(ctx, body)
}

type awardPointsRequest struct {
	AccountID     string `json:"account_id" binding:"required"`
	Kind          string `json:"kind" binding:"required"`
	Description   string `json:"description"`
	ReferenceID   string `json:"reference_id"`
	ReferenceType string `json:"reference_type"`
}

// AwardPoints credits a point-earning event reported by another service.
func (i *InternalController) AwardPoints(ctx *gin.Context) {
	var req awardPointsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid request payload")
		return
	}
	result, err := i.engine.AwardPoints(ctx.Request.Context(), gamification.AwardRequest{
		AccountID:     strings.TrimSpace(req.AccountID),
		Kind:          gamification.PointKind(strings.ToUpper(strings.TrimSpace(req.Kind))),
		Description:   req.Description,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
	})
	if err != nil {
		utils.EngineError(ctx, i.logger, err)
		return
	}
	utils.Success(ctx, result)
}

// CheckBadges evaluates one category for an account.
func (i *InternalController) CheckBadges(ctx *gin.Context) {
	category, err := gamification.ParseCategory(strings.ToLower(ctx.Param("category")))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "invalid badge category")
		return
	}
	unlocked, err := i.engine.CheckBadges(ctx.Request.Context(), ctx.Param("id"), category)
	if err != nil {
		utils.EngineError(ctx, i.logger, err)
		return
	}
	utils.Success(ctx, gin.H{"badges_unlocked": unlocked})
}

// Reconcile reports whether stored totals match the ledger.
func (i *InternalController) Reconcile(ctx *gin.Context) {
	report, err := i.engine.Reconcile(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		utils.EngineError(ctx, i.logger, err)
		return
	}
	utils.Success(ctx, report)
}

// ResetStreaks runs the streak maintenance pass on demand.
func (i *InternalController) ResetStreaks(ctx *gin.Context) {
	result, err := i.engine.ResetExpiredStreaks(ctx.Request.Context())
	if err != nil {
		utils.EngineError(ctx, i.logger, err)
		return
	}
	utils.Success(ctx, result)
}
