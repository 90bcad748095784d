package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/response"
)

// requireClaims returns the authenticated caller, writing a 401 when there is none.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.CurrentUser(c)
	if claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
