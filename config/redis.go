package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ConnectRedis builds a Redis client from cfg and pings it.
// Returns nil, nil when Redis is disabled or the process runs in the test environment.
func ConnectRedis(cfg *Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg == nil || !cfg.RedisEnabled || cfg.IsTest() {
		return nil, nil
	}
	if logger == nil {
		logger = zap.L()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return rdb, nil
}
