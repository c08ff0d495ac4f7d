package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/campushub/accounts/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles the credential endpoints per client IP using a
// fixed window counter kept in redis, so the limit holds across replicas.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  cfg.Limit,
		window: cfg.Window,
	}
}

// RateLimiterMiddleware enforces the limit for a derived key. Redis being
// unavailable fails open: blocking logins on a cache outage is worse than
// briefly losing the throttle.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)

		if key == "" {
			// fallback to IP if key cannot be derived

			key = clientIP(c)
		}

		rkey := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), key)

		ctx := c.Request.Context()

		count, err := rl.rdb.Incr(ctx, rkey).Result()

		if err != nil {
			c.Next()
			return
		}

		if count == 1 {
			_ = rl.rdb.Expire(ctx, rkey, rl.window).Err()
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))

		remaining := int64(rl.limit) - count

		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			ttl, err := rl.rdb.TTL(ctx, rkey).Result()

			retryAfter := int(rl.window.Seconds())

			if err == nil && ttl > 0 {
				retryAfter = int(ttl.Seconds())
			}

			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"statusCode": http.StatusTooManyRequests,
				"message":    "Too many requests. Please try again shortly.",
				"success":    false,
				"errors":     []string{},
			})
			return
		}

		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	if ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)

	if err != nil {
		return c.Request.RemoteAddr
	}

	return host
}
