package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLAccountRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()

	created := seedTestAccount(t, repo, "alice", RolePatron)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, RolePatron, byID.Role)
	assert.True(t, byID.IsActive)
	assert.Equal(t, created.PasswordHash, byID.PasswordHash)
	assert.True(t, byID.CreatedAt.Equal(created.CreatedAt))

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestSQLAccountRepository_NotFound(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()

	_, err := repo.GetByID(ctx, "usr-missing")
	assert.ErrorIs(t, err, ErrNoAccount)
	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoAccount)
	assert.ErrorIs(t, repo.Delete(ctx, "usr-missing"), ErrNoAccount)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, "usr-missing", "$argon2id$x"), ErrNoAccount)
}

func TestSQLAccountRepository_Uniqueness(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()
	h := testHasher()

	seedTestAccount(t, repo, "alice", RolePatron)

	_, err := Register(ctx, repo, h, RegisterInput{Username: "alice", Email: "other@example.com", Password: "test-password"})
	assert.ErrorIs(t, err, ErrUsernameExists)

	_, err = Register(ctx, repo, h, RegisterInput{Username: "alice2", Email: "alice@example.com", Password: "test-password"})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestSQLAccountRepository_CreateRejectsInvalid(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()

	assert.ErrorIs(t, repo.Create(ctx, &Account{Username: "x", Email: "x@example.com", Role: RolePatron}), ErrEmptyPassword)
	assert.ErrorIs(t, repo.Create(ctx, &Account{Username: "x", Email: "x@example.com", PasswordHash: "h", Role: "admin"}), ErrInvalidRole)
}

func TestSQLAccountRepository_Update(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()

	alice := seedTestAccount(t, repo, "alice", RolePatron)
	seedTestAccount(t, repo, "bob", RolePatron)

	staff := RoleStaff
	inactive := false
	email := "Alice.New@example.com"
	updated, err := repo.Update(ctx, alice.ID, AccountUpdate{Role: &staff, IsActive: &inactive, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, updated.Role)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "alice.new@example.com", updated.Email)

	reloaded, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, reloaded.Role)
	assert.False(t, reloaded.IsActive)

	_, err = repo.Update(ctx, alice.ID, AccountUpdate{})
	assert.ErrorIs(t, err, ErrNoFieldsToUpdate)

	bad := Role("admin")
	_, err = repo.Update(ctx, alice.ID, AccountUpdate{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidRole)

	taken := "bob@example.com"
	_, err = repo.Update(ctx, alice.ID, AccountUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = repo.Update(ctx, "usr-missing", AccountUpdate{Role: &staff})
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestSQLAccountRepository_UpdatePasswordAndDelete(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()
	h := testHasher()

	alice := seedTestAccount(t, repo, "alice", RolePatron)
	require.NoError(t, ChangePassword(ctx, repo, h, alice, "test-password", "new-password-1"))

	reloaded, err := repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, h.Verify("new-password-1", reloaded.PasswordHash))
	assert.False(t, h.Verify("test-password", reloaded.PasswordHash))

	assert.ErrorIs(t, ChangePassword(ctx, repo, h, reloaded, "wrong", "another-password"), ErrPasswordMismatch)
	assert.ErrorIs(t, ChangePassword(ctx, repo, h, reloaded, "new-password-1", "short"), ErrPasswordTooShort)
	assert.ErrorIs(t, repo.UpdatePassword(ctx, alice.ID, ""), ErrEmptyPassword)

	require.NoError(t, repo.Delete(ctx, alice.ID))
	_, err = repo.GetByID(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestSQLAccountRepository_ListAndCount(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	ctx := t.Context()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	seedTestAccount(t, repo, "carol", RoleStaff)
	seedTestAccount(t, repo, "alice", RolePatron)
	seedTestAccount(t, repo, "bob", RolePatron)

	all, err := repo.List(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{all[0].Username, all[1].Username, all[2].Username})

	patrons, err := repo.List(ctx, ListOptions{Role: RolePatron})
	require.NoError(t, err)
	assert.Len(t, patrons, 2)

	page, err := repo.List(ctx, ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)

	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	staff, err := repo.CountActiveStaff(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, staff)
}

func TestSQLAccountRepository_ResolverIntegration(t *testing.T) {
	repo := NewSQLAccountRepository(testDB(t))
	tokens := testTokens(t)
	r := NewResolver(tokens, repo)

	alice := seedTestAccount(t, repo, "alice", RoleStaff)
	token, _, err := tokens.Issue(alice.ID, alice.Role, testEpoch)
	require.NoError(t, err)

	p, err := r.Resolve(t.Context(), token, testEpoch)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, p.Role)

	patron := RolePatron
	_, err = repo.Update(t.Context(), alice.ID, AccountUpdate{Role: &patron})
	require.NoError(t, err)
	p, err = r.Resolve(t.Context(), token, testEpoch)
	require.NoError(t, err)
	assert.ErrorIs(t, Authorize(p, RoleStaff), ErrForbidden)

	require.NoError(t, repo.Delete(t.Context(), alice.ID))
	_, err = r.Resolve(t.Context(), token, testEpoch)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
