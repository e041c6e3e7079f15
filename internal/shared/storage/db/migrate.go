package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseSetup sync.Once

func setupGoose() error {
	var err error
	gooseSetup.Do(func() {
		goose.SetBaseFS(migrationFiles)
		err = goose.SetDialect("postgres")
	})
	return err
}

// RunMigrations brings the plans, subscriptions and token ledger schema up to
// date. A nil database is a no-op so in-memory dev runs can call it unconditionally.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return fmt.Errorf("goose setup: %w", err)
	}
	if err := goose.UpContext(ctx, database, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the latest applied migration version.
func SchemaVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if database == nil {
		return 0, nil
	}
	if err := setupGoose(); err != nil {
		return 0, fmt.Errorf("goose setup: %w", err)
	}
	return goose.GetDBVersionContext(ctx, database)
}
