package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Domain errors for database operations.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrMigrationsMissing = errors.New("no embedded migrations registered")
)

// IsUniqueViolation reports whether err is a UNIQUE constraint failure from
// either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// UniqueViolationColumn returns a best-effort hint of which column caused a
// unique violation ("username", "email", ...), or "" when unknown.
func UniqueViolationColumn(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Constraint names follow <table>_<column>_key.
		name := strings.TrimSuffix(pgErr.ConstraintName, "_key")
		if i := strings.Index(name, "_"); i >= 0 {
			return name[i+1:]
		}
		return name
	}

	// SQLite: "UNIQUE constraint failed: accounts.email"
	msg := err.Error()
	if i := strings.LastIndex(msg, "."); i >= 0 && strings.Contains(msg, "UNIQUE constraint failed") {
		return strings.TrimSpace(msg[i+1:])
	}
	return ""
}
