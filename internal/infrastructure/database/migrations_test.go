package database_test

import (
	"context"
	"testing"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	_ "github.com/nerrad567/librarium-core/migrations"
)

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"accounts", "books", "audit_logs"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migrate: %v", table, err)
		}
	}

	version, err := db.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if version != 3 {
		t.Errorf("MigrationVersion() = %d, want 3", version)
	}

	// Re-running is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_RoleConstraint(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO accounts
		(id, username, email, password_hash, role, is_active, created_at, updated_at)
		VALUES ('a', 'eve', 'eve@example.com', 'x', 'admin', 1, '', '')`)
	if err == nil {
		t.Error("accounts accepted a role outside staff/patron")
	}
}
