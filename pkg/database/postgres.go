// Package database provides database connection utilities.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOption configures the connection pool.
type PoolOption func(*pgxpool.Config)

// WithAfterConnect sets a callback run on each new connection (e.g. for type registration).
func WithAfterConnect(fn func(context.Context, *pgx.Conn) error) PoolOption {
	return func(c *pgxpool.Config) {
		c.AfterConnect = fn
	}
}

// WithPoolSize bounds the pool. Zero values keep the pgxpool defaults.
func WithPoolSize(maxConns, minConns int32, maxConnLifetime time.Duration) PoolOption {
	return func(c *pgxpool.Config) {
		if maxConns > 0 {
			c.MaxConns = maxConns
		}

		if minConns > 0 {
			c.MinConns = minConns
		}

		if maxConnLifetime > 0 {
			c.MaxConnLifetime = maxConnLifetime
		}
	}
}

// NewPostgresPool creates a new PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	for _, opt := range opts {
		opt(config)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL")

	return pool, nil
}

// Migrate runs fn on a dedicated connection without pool callbacks. Schema setup goes through
// here because type registration in AfterConnect fails until the extensions it needs exist.
func Migrate(ctx context.Context, databaseURL string, fn func(context.Context, *pgx.Conn) error) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect for migration: %w", err)
	}

	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, conn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
