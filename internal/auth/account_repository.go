package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
)

// AccountUpdate is a partial update. Nil fields are left unchanged.
type AccountUpdate struct {
	Email    *string
	Role     *Role
	IsActive *bool
}

// ListOptions pages through accounts.
type ListOptions struct {
	Role   Role // optional filter
	Limit  int  // default 50, max 200
	Offset int
}

// AccountRepository is the full persistence surface for accounts.
type AccountRepository interface {
	AccountStore
	AccountCreator
	PasswordUpdater
	List(ctx context.Context, opts ListOptions) ([]Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	CountActiveStaff(ctx context.Context) (int, error)
}

// Paging limits for List.
const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// timeFormat is the TEXT encoding used for timestamps. Fixed width, so
// lexical order matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

const accountColumns = "id, username, email, password_hash, role, is_active, created_at, updated_at"

// SQLAccountRepository implements AccountRepository over database/sql.
// Queries use $N placeholders, which both SQLite and PostgreSQL accept.
type SQLAccountRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewSQLAccountRepository creates a repository over db.
func NewSQLAccountRepository(db database.DBTX) *SQLAccountRepository {
	return &SQLAccountRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetByID returns the account or ErrNoAccount.
func (r *SQLAccountRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.getOne(ctx, "id", id)
}

// GetByUsername returns the account or ErrNoAccount.
func (r *SQLAccountRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.getOne(ctx, "username", username)
}

// getOne looks up by a fixed column name; never pass user input as column.
func (r *SQLAccountRepository) getOne(ctx context.Context, column, value string) (*Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE " + column + " = $1" //nolint:gosec // column is a constant from this file
	row := r.db.QueryRowContext(ctx, query, value)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("getting account by %s: %w", column, err)
	}
	return a, nil
}

// Create inserts account, assigning ID and timestamps.
func (r *SQLAccountRepository) Create(ctx context.Context, a *Account) error {
	if a.PasswordHash == "" {
		return ErrEmptyPassword
	}
	if !a.Role.Valid() {
		return ErrInvalidRole
	}
	if a.ID == "" {
		a.ID = "usr-" + uuid.NewString()
	}
	now := r.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Username, a.Email, a.PasswordHash, string(a.Role), a.IsActive,
		now.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return mapUniqueError(err, "creating account")
	}
	return nil
}

// List returns accounts ordered by username.
func (r *SQLAccountRepository) List(ctx context.Context, opts ListOptions) ([]Account, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if opts.Role != "" {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+accountColumns+" FROM accounts WHERE role = $1 ORDER BY username LIMIT $2 OFFSET $3",
			string(opts.Role), opts.Limit, opts.Offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			"SELECT "+accountColumns+" FROM accounts ORDER BY username LIMIT $1 OFFSET $2",
			opts.Limit, opts.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

// Update applies upd and returns the updated account.
func (r *SQLAccountRepository) Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	if upd.Email == nil && upd.Role == nil && upd.IsActive == nil {
		return nil, ErrNoFieldsToUpdate
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if !IsValidEmail(email) {
			return nil, ErrInvalidEmail
		}
		current.Email = email
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, ErrInvalidRole
		}
		current.Role = *upd.Role
	}
	if upd.IsActive != nil {
		current.IsActive = *upd.IsActive
	}
	current.UpdatedAt = r.now()

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email = $1, role = $2, is_active = $3, updated_at = $4 WHERE id = $5`,
		current.Email, string(current.Role), current.IsActive, current.UpdatedAt.Format(timeFormat), id,
	)
	if err != nil {
		return nil, mapUniqueError(err, "updating account")
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return current, nil
}

// UpdatePassword replaces the stored hash.
func (r *SQLAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if passwordHash == "" {
		return ErrEmptyPassword
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, r.now().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return expectOneRow(res)
}

// Delete removes the account. Outstanding tokens for it stop resolving.
func (r *SQLAccountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return expectOneRow(res)
}

// Count returns the number of accounts.
func (r *SQLAccountRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

// CountActiveStaff returns the number of active staff accounts.
func (r *SQLAccountRepository) CountActiveStaff(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE role = $1 AND is_active = $2`,
		string(RoleStaff), true,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting staff accounts: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(s rowScanner) (*Account, error) {
	var (
		a                    Account
		role                 string
		createdAt, updatedAt string
	)
	if err := s.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &a.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Role = Role(role)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNoAccount
	}
	return nil
}

func mapUniqueError(err error, op string) error {
	if database.IsUniqueViolation(err) {
		switch database.UniqueViolationColumn(err) {
		case "email":
			return ErrEmailExists
		default:
			return ErrUsernameExists
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
