package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/citizen-safety-api/internal/service"
	appErrors "github.com/noah-isme/citizen-safety-api/pkg/errors"
	"github.com/noah-isme/citizen-safety-api/pkg/response"
)

// RateCounter counts hits for a subject inside a fixed window.
type RateCounter interface {
	Hit(ctx context.Context, subject string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit caps requests per caller within window. Authenticated callers are
// keyed by user id, everyone else by client IP. Counter failures let the
// request through.
func RateLimit(counter RateCounter, limit int, window time.Duration, metrics *service.MetricsService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if claims := Claims(c); claims != nil {
			if claims.IsAdmin() {
				c.Next()
				return
			}
			if claims.UserID > 0 {
				subject = fmt.Sprintf("user:%d", claims.UserID)
			}
		}

		count, ttl, err := counter.Hit(c.Request.Context(), subject, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("subject", subject), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(limit) {
			retryAfter := int64(math.Ceil(ttl.Seconds()))
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			metrics.RateLimitRejected()
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, fmt.Sprintf("daily limit of %d issues reached, retry in %d seconds", limit, retryAfter)))
			c.Abort()
			return
		}
		c.Next()
	}
}
