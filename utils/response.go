package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mindhaven/mindhaven/gamification"
)

// Envelope is the body of every API response. Code 0 is success; error codes are five
// digits whose first three repeat the HTTP status.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success answers 200 with data.
func Success(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, Envelope{Message: "success", Data: data})
}

// Created answers 201 with data.
func Created(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusCreated, Envelope{Message: "success", Data: data})
}

// Error answers with an error envelope and stops the handler chain.
func Error(ctx *gin.Context, status int, code int, message string) {
	ctx.AbortWithStatusJSON(status, Envelope{Code: code, Message: message})
}

// Failure is the client-facing form of an engine error.
type Failure struct {
	Status  int
	Code    int
	Message string
}

// ClassifyEngineError maps the engine's error taxonomy onto statuses and codes. Persistence
// failures are retryable, so they surface as 503 rather than 500.
func ClassifyEngineError(err error) Failure {
	var pe *gamification.PersistenceError
	switch {
	case errors.Is(err, gamification.ErrNotFound):
		return Failure{http.StatusNotFound, 40410, "account not found"}
	case errors.Is(err, gamification.ErrBadgeNotFound):
		return Failure{http.StatusNotFound, 40411, "badge not found"}
	case gamification.IsValidation(err):
		return Failure{http.StatusBadRequest, 40010, err.Error()}
	case errors.As(err, &pe):
		return Failure{http.StatusServiceUnavailable, 50310, "temporarily unavailable, try again"}
	default:
		return Failure{http.StatusInternalServerError, 50010, "internal error"}
	}
}

// EngineError writes the envelope for err. Storage and unexpected failures are logged;
// caller mistakes are not.
func EngineError(ctx *gin.Context, logger *zap.Logger, err error) {
	f := ClassifyEngineError(err)
	switch f.Status {
	case http.StatusServiceUnavailable:
		var pe *gamification.PersistenceError
		errors.As(err, &pe)
		logger.Warn("persistence failure", zap.String("op", pe.Op), zap.Error(pe.Err), zap.String("path", ctx.FullPath()))
	case http.StatusInternalServerError:
		logger.Error("unexpected engine error", zap.Error(err), zap.String("path", ctx.FullPath()))
	}
	Error(ctx, f.Status, f.Code, f.Message)
}
