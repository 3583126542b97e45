// Package cache fronts package reference data with Redis.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"petcare/internal/config"
)

// NewClient parses the Redis URL from cfg and pings the server before
// returning.
func NewClient(ctx context.Context, cfg config.CacheConfig) (*redis.Client, error) {
	const op = "cache.NewClient"
	opts, err := redis.ParseURL(cfg.RedisURL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("%s: parsing redis url: %w", op, err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 2 * time.Second
	}
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// HealthProbe reports Redis reachability to the /health endpoint.
type HealthProbe struct {
	client redis.Cmdable
}

// NewHealthProbe wraps a client for health checking.
func NewHealthProbe(client redis.Cmdable) *HealthProbe {
	return &HealthProbe{client: client}
}

func (p *HealthProbe) Name() string { return "redis" }

func (p *HealthProbe) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
