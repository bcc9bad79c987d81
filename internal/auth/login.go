package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/thejerf/abtime"
)

// PasswordUpdater persists a replacement hash. Stores that implement it
// get legacy and weaker hashes upgraded on successful login.
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// LoginResult is a successful login.
type LoginResult struct {
	Token     string
	Claims    *Claims
	Account   *Account
	ExpiresIn time.Duration
}

// Authenticator is the login entrypoint: it verifies credentials against
// the account store and issues a token.
type Authenticator struct {
	store  AccountStore
	hasher *Hasher
	tokens *TokenService
	clock  abtime.AbstractTime
	logger *slog.Logger
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithClock replaces the wall clock, for tests.
func WithClock(c abtime.AbstractTime) AuthenticatorOption {
	return func(a *Authenticator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = l }
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(store AccountStore, hasher *Hasher, tokens *TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		clock:  abtime.NewRealTime(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Now returns the authenticator's current time.
func (a *Authenticator) Now() time.Time {
	return a.clock.Now()
}

// Login checks username and password and issues a token.
//
// Unknown usernames, wrong passwords and inactive accounts all fail with
// the same KindInvalidCredentials error. A password verification runs on
// every path so the response time does not reveal which one was taken.
// Store failures fail with KindStoreUnavailable.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	// Usernames are stored trimmed; passwords are taken verbatim.
	account, err := a.store.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, ErrNoAccount) {
		a.logger.Error("login: account lookup failed", "kind", KindStoreUnavailable, "error", err)
		return nil, newError(KindStoreUnavailable, err)
	}

	hash := a.hasher.DummyHash()
	if account != nil {
		hash = account.PasswordHash
	}
	ok := a.hasher.Verify(password, hash)

	if account == nil || !ok || !account.IsActive {
		a.logger.Info("login rejected", "kind", KindInvalidCredentials)
		return nil, newError(KindInvalidCredentials, nil)
	}

	now := a.clock.Now()
	token, claims, err := a.tokens.Issue(account.ID, account.Role, now)
	if err != nil {
		return nil, err
	}

	if a.hasher.NeedsRehash(account.PasswordHash) {
		a.rehash(ctx, account, password)
	}

	a.logger.Info("login succeeded", "account_id", account.ID, "role", account.Role)

	return &LoginResult{
		Token:     token,
		Claims:    claims,
		Account:   account,
		ExpiresIn: a.tokens.TTL(),
	}, nil
}

// IssueFor issues a token for an already-loaded account without a password
// check. It is used by administrative tooling.
func (a *Authenticator) IssueFor(account *Account) (*LoginResult, error) {
	if account == nil || !account.IsActive {
		return nil, newError(KindAccountNotFound, ErrNoAccount)
	}
	token, claims, err := a.tokens.Issue(account.ID, account.Role, a.clock.Now())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, Claims: claims, Account: account, ExpiresIn: a.tokens.TTL()}, nil
}

// rehash upgrades the stored hash. Failure is logged and otherwise ignored:
// the login itself already succeeded.
func (a *Authenticator) rehash(ctx context.Context, account *Account, password string) {
	updater, ok := a.store.(PasswordUpdater)
	if !ok {
		return
	}
	newHash, err := a.hasher.Hash(password)
	if err != nil {
		a.logger.Warn("login: rehash failed", "account_id", account.ID, "error", err)
		return
	}
	if err := updater.UpdatePassword(ctx, account.ID, newHash); err != nil {
		a.logger.Warn("login: storing rehash failed", "account_id", account.ID, "error", err)
		return
	}
	account.PasswordHash = newHash
	a.logger.Info("password hash upgraded", "account_id", account.ID)
}
