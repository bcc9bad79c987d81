// Package database provides relational store connectivity for Librarium Core.
//
// Two drivers are supported behind the same *DB wrapper:
//   - sqlite: embedded file database (mattn/go-sqlite3) with WAL mode, the default
//   - postgres: pgx stdlib pool for production deployments
//
// Queries use $N placeholders, which both drivers accept. With SQLite, $N
// parameters bind by order of first appearance, so every query introduces
// $1, $2, ... in ascending order.
//
// Schema migrations are goose SQL files embedded per driver by the
// migrations package.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - SQLite database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
