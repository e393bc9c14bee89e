// Package database provides helpers to initialize and manage the Postgres
// connection and run embedded migrations, plus the query layer used by the
// scheduler, worker and API.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"github.com/pressly/goose/v3"
)

//go:embed sql/0*.sql
var migrations embed.FS

// InitDB opens a Postgres connection pool, verifies connectivity and applies
// embedded migrations. The returned *sql.DB is ready for use with Queries.
func InitDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Worker processes hold short transactions only; a modest pool is enough
	// and keeps lock queues shallow.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to ping database: %w", errors.Join(err, cerr))
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("failed to apply database schema: %w", errors.Join(err, cerr))
		}
		return nil, fmt.Errorf("failed to apply database schema: %w", err)
	}

	return db, nil
}

// migrate applies all embedded goose migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "sql")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	goose.SetBaseFS(sub)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CloseDB closes the database connection.
func CloseDB(db *sql.DB) error {
	if db != nil {
		if err := db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}
