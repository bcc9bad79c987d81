package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
	_ "github.com/nerrad567/librarium-core/migrations"
)

// testSecret is a 32-byte signing key for tests.
var testSecret = []byte("test-signing-secret-32-bytes-xx!")

// testEpoch is a fixed issuance time for token tests.
var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testHasher uses minimal Argon2id cost so tests stay fast.
func testHasher() *Hasher {
	return NewHasher(HashParams{Memory: 64, Time: 1, Threads: 1, MinLength: 8})
}

func testTokens(t testing.TB) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{Secret: testSecret, TTL: time.Hour, ClockSkew: time.Minute})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

// testDB opens a migrated in-memory SQLite database.
func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db
}

// seedTestAccount inserts an active account with password "test-password".
func seedTestAccount(t *testing.T, repo *SQLAccountRepository, username string, role Role) *Account {
	t.Helper()

	account, err := Register(t.Context(), repo, testHasher(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "test-password",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("creating test account %s: %v", username, err)
	}
	return account
}

// memStore is an in-memory AccountStore.
type memStore struct {
	mu       sync.Mutex
	byID     map[string]*Account
	err      error
	updates  int
	lastHash string
}

func newMemStore(accounts ...*Account) *memStore {
	s := &memStore{byID: make(map[string]*Account)}
	for _, a := range accounts {
		s.byID[a.ID] = a
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, ErrNoAccount
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, a := range s.byID {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNoAccount
}

func (s *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNoAccount
	}
	a.PasswordHash = hash
	s.updates++
	s.lastHash = hash
	return nil
}

func (s *memStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

func (s *memStore) setRole(id string, role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].Role = role
}

func (s *memStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id].IsActive = active
}
