package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type memoryCounter struct {
	counts   map[string]int64
	err      error
	subjects []string
}

func (m *memoryCounter) Hit(ctx context.Context, subject string, window time.Duration) (int64, time.Duration, error) {
	m.subjects = append(m.subjects, subject)
	if m.err != nil {
		return 0, 0, m.err
	}
	if m.counts == nil {
		m.counts = map[string]int64{}
	}
	m.counts[subject]++
	return m.counts[subject], 90 * time.Minute, nil
}

func rateLimitedRouter(counter RateCounter, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/issues", OptionalJWT(testTokens), RateLimit(counter, limit, 24*time.Hour, nil, nil), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return router
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	counter := &memoryCounter{}
	router := rateLimitedRouter(counter, 2)

	assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/issues", "Bearer user").Code)
	assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/issues", "Bearer user").Code)

	rec := serve(router, http.MethodPost, "/issues", "Bearer user")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5400", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Equal(t, "user:7", counter.subjects[0])
}

func TestRateLimitKeysAnonymousByIP(t *testing.T) {
	counter := &memoryCounter{}
	router := rateLimitedRouter(counter, 5)

	serve(router, http.MethodPost, "/issues", "")
	assert.Equal(t, "ip:192.0.2.1", counter.subjects[0])
}

func TestRateLimitSkipsAdmins(t *testing.T) {
	counter := &memoryCounter{}
	router := rateLimitedRouter(counter, 1)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/issues", "Bearer admin").Code)
	}
	assert.Empty(t, counter.subjects)
}

func TestRateLimitFailsOpen(t *testing.T) {
	counter := &memoryCounter{err: errors.New("redis: connection refused")}
	router := rateLimitedRouter(counter, 1)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusCreated, serve(router, http.MethodPost, "/issues", "").Code)
	}
}
