package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/citizen-safety-api/internal/middleware"
	"github.com/noah-isme/citizen-safety-api/internal/models"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func actorFromContext(c *gin.Context) models.Actor {
	return models.ActorFromClaims(claimsFromContext(c))
}

// userIDFromContext returns the caller's account id. Routes using it sit
// behind JWT and RequireAccount, so a missing id is an authorization failure.
func userIDFromContext(c *gin.Context) (int64, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID <= 0 {
		return 0, appErrors.ErrUnauthorized
	}
	return claims.UserID, nil
}

func int64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}
