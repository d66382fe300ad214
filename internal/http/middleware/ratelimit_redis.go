package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter on INCR/EXPIRE.
// Keys: <prefix>:rl:<window_seconds>:<identifier>.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateLimiter returns a limiter. A nil client yields a limiter that
// lets everything through.
func NewRedisRateLimiter(client *redis.Client, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "rps"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Limit allows maxRequests per window per player, falling back to client IP
// for unauthenticated routes. Redis errors fail open.
func (l *RedisRateLimiter) Limit(maxRequests int, window time.Duration) gin.HandlerFunc {
	secs := strconv.FormatInt(int64(window.Seconds()), 10)
	return func(c *gin.Context) {
		if l == nil || l.client == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		ident := "ip:" + c.ClientIP()
		if id, ok := c.Get("player_id"); ok {
			if s, _ := id.(string); s != "" {
				ident = "player:" + s
			}
		}
		key := l.prefix + ":rl:" + secs + ":" + ident
		ctx := c.Request.Context()

		val, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			l.client.Expire(ctx, key, window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

		if val > int64(maxRequests) {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
