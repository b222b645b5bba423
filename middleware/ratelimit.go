package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/erlaaaand/dentizy/util"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Rate limiting defaults
	defaultRateLimit  = 60
	defaultRateWindow = time.Minute
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	Limit  int64
	Window time.Duration
}

// RateLimiter is a fixed window limiter keyed by endpoint and client IP.
// Counters live in Redis; with no client every request is allowed.
type RateLimiter struct {
	rdb    *redis.Client
	config RateLimitConfig
	logger *zap.Logger
}

func NewRateLimiter(rdb *redis.Client, config RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if config.Limit <= 0 {
		config.Limit = defaultRateLimit
	}
	if config.Window <= 0 {
		config.Window = defaultRateWindow
	}
	if logger == nil {
		logger = zap.L()
	}
	return &RateLimiter{rdb: rdb, config: config, logger: logger.With(zap.String("component", "ratelimit"))}
}

// Middleware rejects requests over the limit with 429.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		endpoint := c.Request.URL.Path

		allowed, err := r.Allow(c.Request.Context(), rateLimitKey(endpoint, clientIP))
		if err != nil {
			// Fail open when Redis is unreachable.
			r.logger.Warn("rate limit check failed", zap.String("client_ip", clientIP), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			r.logger.Warn("rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", endpoint),
				zap.String("request_id", util.RequestIDFromContext(c.Request.Context())),
			)
			util.CallTooManyRequests(c, util.APIErrorParams{
				Msg: "Too many requests. Please try again later.",
				Err: fmt.Errorf("rate limit exceeded"),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Allow counts one hit against key and reports whether it is within the limit.
// The window starts with the first hit and is not extended by later ones.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}

	pipe := r.rdb.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}

	// A negative TTL means the key has no expiry yet: first hit, or an
	// earlier Expire failed.
	if ttlCmd.Val() < 0 {
		if err := r.rdb.Expire(ctx, key, r.config.Window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return incrCmd.Val() <= r.config.Limit, nil
}

// Reset clears the counter for a client on an endpoint.
func (r *RateLimiter) Reset(ctx context.Context, clientIP, endpoint string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis not available")
	}
	return r.rdb.Del(ctx, rateLimitKey(endpoint, clientIP)).Err()
}

func rateLimitKey(endpoint, clientIP string) string {
	return fmt.Sprintf("ratelimit:%s:%s", endpoint, clientIP)
}
