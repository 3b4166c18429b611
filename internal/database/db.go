// internal/database/db.go
package database

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options locate the PostgreSQL server.
type Options struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// DSN renders the connection string.
func (o Options) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", o.User, o.Password, o.Host, o.Port, o.Database)
}

// Connect opens a pool and pings it.
func Connect(ctx context.Context, o Options) (*pgxpool.Pool, error) {
	return ConnectDSN(ctx, o.DSN())
}

// ConnectDSN is Connect for a ready-made connection string.
func ConnectDSN(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// Migrate applies the pending goose migrations through pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run up migrations: %w", err)
	}
	return nil
}
