package database

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/nerrad567/librarium-core/internal/infrastructure/config"
)

// MigrationsFS holds one sub-directory of goose SQL migrations per driver
// ("sqlite", "postgres"). The migrations package registers it in init.
var MigrationsFS fs.FS

// goose keeps its dialect and base FS in package state.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *DB, dir string) error {
	return goose.UpContext(ctx, db.DB, dir)
}

// dialect returns the goose dialect and migration directory for the driver.
func (db *DB) dialect() (string, string) {
	if db.driver == config.DriverPostgres {
		return "pgx", "postgres"
	}
	return "sqlite3", "sqlite"
}

// Migrate applies all pending migrations for the connected driver.
//
// Each goose migration runs in its own transaction: a failure leaves earlier
// migrations applied and re-running Migrate continues from the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	if MigrationsFS == nil {
		return ErrMigrationsMissing
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, dir := db.dialect()
	goose.SetBaseFS(MigrationsFS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}

	if err := gooseUpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	if MigrationsFS == nil {
		return 0, ErrMigrationsMissing
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	dialect, _ := db.dialect()
	if err := goose.SetDialect(dialect); err != nil {
		return 0, fmt.Errorf("setting migration dialect: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
