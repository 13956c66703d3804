package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/response"
)

// RequireAdmin lets through admin accounts and the static admin token.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.IsAdmin() {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAccount rejects identities without a user account, such as the
// static admin token, on routes that operate on the caller's own account.
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.UserID <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "a user account is required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
