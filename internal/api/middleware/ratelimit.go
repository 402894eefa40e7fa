package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hanningtontech/nurse-connect-app-sub000/pkg/ratelimit"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter *ratelimit.RateLimiter
	KeyFunc func(*gin.Context) string // Function to extract rate limit key
}

// DefaultKeyFunc uses player ID if authenticated, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if playerID, ok := PlayerID(c); ok {
		return "player:" + playerID
	}
	return IPKeyFunc(c)
}

// IPKeyFunc uses only IP address (for public endpoints)
func IPKeyFunc(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// PlayerKeyFunc uses only player ID (requires authentication)
func PlayerKeyFunc(c *gin.Context) string {
	if playerID, ok := PlayerID(c); ok {
		return "player:" + playerID
	}
	return ""
}

// RateLimit creates a rate limiting middleware
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}
	limit := strconv.FormatInt(config.Limiter.Capacity(), 10)

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required for rate limiting",
			})
			return
		}

		c.Header("X-RateLimit-Limit", limit)

		if !config.Limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per second", config.Limiter.RefillRate()),
			})
			return
		}

		c.Next()
	}
}

// AnswerRateLimit 답안 제출 플레이어별 제한
func AnswerRateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: PlayerKeyFunc,
	})
}

// AuthRateLimit 게스트 토큰 발급 IP별 제한
func AuthRateLimit(limiter *ratelimit.RateLimiter) gin.HandlerFunc {
	return RateLimit(RateLimitConfig{
		Limiter: limiter,
		KeyFunc: IPKeyFunc,
	})
}
