package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/noah-isme/citizen-safety-api/pkg/config"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Open connects to the configured backend.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case "", config.DriverSQLite:
		return NewSQLite(cfg.Path)
	case config.DriverPostgres:
		return NewPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate applies the embedded schema migrations matching the connection's driver.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dialect, dir := goose.DialectSQLite3, "migrations/sqlite"
	if db.DriverName() == config.DriverPostgres {
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	}

	sub, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	return MigrateFS(ctx, db, dialect, sub)
}

// MigrateFS runs every pending goose migration found in fsys.
func MigrateFS(ctx context.Context, db *sqlx.DB, dialect goose.Dialect, fsys fs.FS) error {
	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
