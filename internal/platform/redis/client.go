// Package redis builds the shared go-redis client used by the Redis record
// store and the Redis notification channel.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"eda/internal/platform/config"
)

// Client is a connected go-redis client.
type Client struct {
	*redis.Client
}

// Options turns cfg into go-redis options. Zero values keep the go-redis
// defaults parsed from the URL.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// New connects and pings. The client is closed again if the ping fails.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
