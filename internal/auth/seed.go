package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for each seed password.
const seedPasswordBytes = 16

// SeededAccount is an account created by SeedAccounts with its one-time
// plaintext password.
type SeededAccount struct {
	Username string
	Role     Role
	Password string
}

// SeedRepository is what seeding needs from the account store.
type SeedRepository interface {
	AccountCreator
	Count(ctx context.Context) (int, error)
}

// SeedAccounts creates a "staff" and a "patron" account on first boot if no
// accounts exist. The generated passwords are returned to the caller, which
// is responsible for showing them once; they are not logged.
// Returns nil if seeding was skipped.
func SeedAccounts(ctx context.Context, repo SeedRepository, hasher *Hasher, logger *slog.Logger) ([]SeededAccount, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking account count: %w", err)
	}

	if count > 0 {
		logger.Info("accounts exist, skipping account seed")
		return nil, nil
	}

	seeds := []struct {
		username, email string
		role            Role
	}{
		{"staff", "staff@librarium.local", RoleStaff},
		{"patron", "patron@librarium.local", RolePatron},
	}

	created := make([]SeededAccount, 0, len(seeds))
	for _, s := range seeds {
		password, err := randomPassword()
		if err != nil {
			return nil, err
		}

		if _, err := Register(ctx, repo, hasher, RegisterInput{
			Username: s.username,
			Email:    s.email,
			Password: password,
			Role:     s.role,
		}); err != nil {
			return nil, fmt.Errorf("creating seed account %s: %w", s.username, err)
		}

		created = append(created, SeededAccount{Username: s.username, Role: s.role, Password: password})
		logger.Warn("seed account created",
			"username", s.username,
			"role", s.role,
			"action_required", "change this password immediately",
		)
	}

	return created, nil
}

func randomPassword() (string, error) {
	b := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	return hex.EncodeToString(b), nil
}
