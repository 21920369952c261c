package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/pkg/database"
)

// OpenPool applies the schema on a plain connection, then opens the pool with pgvector
// types registered and brings the River tables up to date.
func OpenPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	err := database.Migrate(ctx, cfg.DatabaseURL, func(ctx context.Context, conn *pgx.Conn) error {
		return Migrate(ctx, conn)
	})
	if err != nil {
		return nil, err
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL,
		database.WithPoolSize(int32(cfg.DatabaseMaxConns), int32(cfg.DatabaseMinConns), cfg.DatabaseMaxConnLifetime), //nolint:gosec // bounded by config validation
		database.WithAfterConnect(pgxvec.RegisterTypes),
	)
	if err != nil {
		return nil, err
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create River migrator: %w", err)
	}

	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to migrate River tables: %w", err)
	}

	return db, nil
}
