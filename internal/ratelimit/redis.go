package ratelimit

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/referly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient returns nil when redis is disabled; every consumer in this
// package treats a nil client as "feature off".
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
