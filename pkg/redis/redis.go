package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ride-pool/pkg/config"
	"ride-pool/pkg/logger"
)

const (
	maxRetries    = 5
	retryInterval = 2 * time.Second
)

// NewClient connects to Redis and pings it, retrying while the server comes up.
func NewClient(ctx context.Context, cfg *config.Config, log logger.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     20,
		MinIdleConns: 3,
	})

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			log.WithFields(logger.LogFields{"addr": cfg.Redis.Addr}).Info("redis_connected", "Connected to Redis")
			return client, nil
		}
		log.Error("redis_ping_failed", fmt.Errorf("failed to ping redis (attempt %d/%d): %w", i+1, maxRetries, err))
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, err)
}
