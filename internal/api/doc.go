// Package api implements the HTTP REST API and WebSocket server for Librarium Core.
//
// This package provides:
//   - Login, registration, and self-service account endpoints
//   - Staff account management and the audit trail
//   - Catalog CRUD with presigned cover upload/download URLs
//   - WebSocket hub broadcasting catalog changes
//   - Middleware stack (request ID, logging, recovery, CORS, metrics, bearer auth)
//
// # Security
//
// Every protected route runs requireAuth, which hands the bearer token to
// auth.Resolver. The resolver validates the token and then reads the account
// from the store, so deletion, deactivation and role changes take effect on
// the next request. requireRole then checks the live role. All token
// failures produce the same 401 body; a store outage produces 503.
//
// WebSocket connections use single-use tickets to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// MQTT, InfluxDB, cover storage and the audit repository are optional. When
// one is missing the server keeps serving and only that feature is off.
package api
