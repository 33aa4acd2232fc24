package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mindhaven/mindhaven/utils"
)

const (
	// ContextAccountIDKey is the key used to store the authenticated account ID in Gin context.
	ContextAccountIDKey = "account_id"
	// InternalKeyHeader carries the shared secret of service-to-service calls.
	InternalKeyHeader = "X-Internal-Key"
)

// AuthRequired ensures the request is authenticated via an HS256 JWT signed with secret.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(secret, tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextAccountIDKey, claims.AccountID)
		ctx.Next()
	}
}

// InternalOnly admits callers presenting the internal API key.
func InternalOnly(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(ctx *gin.Context) {
		got := ctx.GetHeader(InternalKeyHeader)
		if got == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "internal key missing")
			ctx.Abort()
			return
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			utils.Error(ctx, http.StatusForbidden, 40301, "invalid internal key")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}

// AccountID returns the authenticated account of the request.
func AccountID(ctx *gin.Context) string {
	return ctx.GetString(ContextAccountIDKey)
}
