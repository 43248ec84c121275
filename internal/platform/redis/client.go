// Package redis opens the go-redis client shared by the profile and role
// selection stores when the redis backend is selected.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"dossier/internal/platform/config"
)

// Open builds a client from cfg. The URL supplies address, credentials and
// database; pool and timeout settings override it. The client is pinged
// before it is returned.
func Open(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ClientName = "dossier"

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Check reports whether client still answers PING.
func Check(client *goredis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
