// Package auth provides authentication and role-based access control for
// Librarium Core.
//
// A request's authentication lifecycle runs through four components:
//   - Hasher: Argon2id password hashing, with verification of legacy bcrypt hashes
//   - TokenService: HS256 session tokens with a fixed validation order
//     (malformed, then signature, then expiry) and issued-at skew tolerance
//   - Resolver: maps a valid token to a Principal by re-reading the account,
//     so deletion, deactivation and role changes take effect immediately
//   - Authorize / Can: the access guard over a two-role hierarchy (staff ⊇ patron)
//
// Every failure is an *Error carrying a Kind. Callers switch on KindOf(err)
// or test errors.Is(err, ErrExpired) and friends.
//
// Tokens are stateless: no issued token is persisted. The live account
// lookup in Resolve is the only revocation mechanism.
package auth
