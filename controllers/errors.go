package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mindhaven/mindhaven/middleware"
	"github.com/mindhaven/mindhaven/utils"
)

func requireAccount(ctx *gin.Context) (string, bool) {
	accountID := middleware.AccountID(ctx)
	if accountID == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return "", false
	}
	return accountID, true
}
