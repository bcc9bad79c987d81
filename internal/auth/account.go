package auth

import (
	"context"
	"fmt"
	"strings"
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Role defaults to patron when empty.
	Role Role `json:"role,omitempty"`
}

// AccountCreator persists a new account.
type AccountCreator interface {
	Create(ctx context.Context, account *Account) error
}

// NewAccount validates in and returns an unsaved active Account with the
// password already hashed.
func NewAccount(in RegisterInput, hasher *Hasher) (*Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	role := in.Role
	if role == "" {
		role = RolePatron
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	if err := hasher.CheckPolicy(in.Password); err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	return &Account{
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}, nil
}

// Register validates, hashes and persists a new account. Duplicate
// usernames and emails surface as ErrUsernameExists / ErrEmailExists.
func Register(ctx context.Context, repo AccountCreator, hasher *Hasher, in RegisterInput) (*Account, error) {
	account, err := NewAccount(in, hasher)
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// ChangePassword verifies current against account's hash, then stores a
// hash of next.
func ChangePassword(ctx context.Context, repo PasswordUpdater, hasher *Hasher, account *Account, current, next string) error {
	if !hasher.Verify(current, account.PasswordHash) {
		return ErrPasswordMismatch
	}
	if err := hasher.CheckPolicy(next); err != nil {
		return err
	}
	hash, err := hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := repo.UpdatePassword(ctx, account.ID, hash); err != nil {
		return err
	}
	account.PasswordHash = hash
	return nil
}
