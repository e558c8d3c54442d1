package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ASHISH26940/manim-studio/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// counter is the subset of *redis.Client the limiter uses.
type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// RateLimiter counts requests per user in fixed Redis windows.
type RateLimiter struct {
	redis counter
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit allows maxRequests per user per window. Requests without an
// authenticated user, and any Redis failure, pass through.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || maxRequests <= 0 {
			c.Next()
			return
		}
		userID := GetUserID(c)
		if userID == uuid.Nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, userID.String())
		ctx := c.Request.Context()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			log.Warnf("RateLimiter: Redis unavailable, allowing request: %v", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.redis.Expire(ctx, key, window).Err(); err != nil {
				log.Warnf("RateLimiter: Failed to set window on %s: %v", key, err)
			}
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Header("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			log.Debugf("RateLimiter: User %s exceeded %s limit.", userID.String(), keyPrefix)
			utils.ResponseWithError(c, http.StatusTooManyRequests, "Too many requests, please try again later", nil)
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))
		c.Next()
	}
}

// CreateLimit limits animation creation per hour.
func (rl *RateLimiter) CreateLimit(maxPerHour int) gin.HandlerFunc {
	return rl.Limit("animations", maxPerHour, time.Hour)
}
