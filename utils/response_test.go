package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mindhaven/mindhaven/gamification"
)

func TestClassifyEngineError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"missing account", fmt.Errorf("lookup: %w", gamification.ErrNotFound), http.StatusNotFound, 40410},
		{"missing badge", gamification.ErrBadgeNotFound, http.StatusNotFound, 40411},
		{"bad kind", gamification.ErrInvalidKind, http.StatusBadRequest, 40010},
		{"bad category", gamification.ErrInvalidCategory, http.StatusBadRequest, 40010},
		{"storage", &gamification.PersistenceError{Op: "award_points", Err: fmt.Errorf("deadlock")}, http.StatusServiceUnavailable, 50310},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, 50010},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := ClassifyEngineError(tc.err)
			if f.Status != tc.status || f.Code != tc.code {
				t.Fatalf("got %d/%d, want %d/%d", f.Status, f.Code, tc.status, tc.code)
			}
		})
	}
}

func TestEngineErrorWritesEnvelopeAndStopsChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	reached := false
	r := gin.New()
	r.GET("/award", func(ctx *gin.Context) {
		EngineError(ctx, logger, &gamification.PersistenceError{Op: "award_points", Err: fmt.Errorf("lock timeout")})
	}, func(ctx *gin.Context) { reached = true })
	r.GET("/invalid", func(ctx *gin.Context) {
		EngineError(ctx, logger, gamification.ErrInvalidAccount)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/award", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Code != 50310 || env.Data != nil {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if reached {
		t.Fatal("handler chain continued after an error")
	}
	if got := logs.FilterMessage("persistence failure").Len(); got != 1 {
		t.Fatalf("expected one persistence log, got %d", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/invalid", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if logs.Len() != 1 {
		t.Fatalf("validation errors should not be logged, got %d entries", logs.Len())
	}
}

func TestCreatedEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/accounts", func(ctx *gin.Context) { Created(ctx, gin.H{"created": true}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/accounts", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	var env Envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Code != 0 || env.Message != "success" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
