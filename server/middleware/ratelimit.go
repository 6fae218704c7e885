package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/resilience"
)

// KeyFunc extracts the rate limit key from a request.
type KeyFunc func(*gin.Context) string

// IPBasedKey keys requests by client IP.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimit returns a Gin middleware that takes one token per request from
// the caller's bucket and rejects with 429 when it is empty. A nil key
// function keys by client IP.
func RateLimit(limiter *resilience.KeyedRateLimiter, key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = IPBasedKey
	}
	return func(c *gin.Context) {
		if !limiter.Allow(key(c)) {
			err := apperrors.RateLimited()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, err.ToResponse())
			return
		}
		c.Next()
	}
}
