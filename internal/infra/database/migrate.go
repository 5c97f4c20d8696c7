package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/azniosman/vms/internal/infra/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate creates the schema if needed and applies pending goose migrations through the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg config.PostgresSettings, log *zap.Logger) error {
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schemaOf(cfg)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	log.Info("database migrations applied", zap.Int64("version", version))
	return nil
}
