package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/crescendo/internal/config"
)

// NewRedis creates a Redis client from cfg and waits until it answers a
// ping. Redis holds browser sessions, so the app cannot serve without it.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := waitReady("redis", ping); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Health pings both stores once. Used by the /healthz endpoint.
func Health(ctx context.Context, db *sql.DB, rdb *redis.Client) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("mariadb: %w", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
