// Package catalog manages the library's book records.
//
// Books are identified by a generated ID and carry a unique 13-digit ISBN.
// The Repository interface abstracts persistence; SQLRepository implements
// it for both SQLite and PostgreSQL.
//
// Catalog mutations are staff-only. That rule is enforced by the API layer
// through the auth package, not here.
package catalog
