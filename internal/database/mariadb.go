// Package database provides connection setup for MariaDB and Redis.
// Both connections are created once at startup and shared across the
// application via dependency injection. This package owns the connection
// lifecycle (open, configure pool, ping, close).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver -- imported for side effect of registering the driver.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/crescendo/internal/config"
)

// connectAttempts bounds how long startup waits for a backing service.
const connectAttempts = 10

// NewMariaDB creates a MariaDB connection pool configured from cfg and waits
// until the server answers a ping.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitReady("mariadb", db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitReady pings with exponential backoff. MariaDB and Redis may still be
// starting when the app container launches under Docker Compose.
func waitReady(name string, ping func(context.Context) error) error {
	backoff := time.Second
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == connectAttempts {
			break
		}

		slog.Warn(name+" not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, 30*time.Second)
	}
	return fmt.Errorf("pinging %s after %d attempts: %w", name, connectAttempts, err)
}
