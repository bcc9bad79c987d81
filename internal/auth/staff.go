package auth

import (
	"context"
	"fmt"

	"github.com/nerrad567/librarium-core/internal/infrastructure/database"
)

// TxRunner runs fn inside one database transaction. *database.DB satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) error
}

// LastStaffGuard applies account updates and deletions without ever leaving
// zero active staff accounts.
//
// The active staff count and the write run in the same transaction. With
// lockRows set (PostgreSQL) the active staff rows are taken FOR UPDATE, so a
// concurrent removal waits and then counts what the first one left behind.
// SQLite runs on a single pooled connection, which already serializes
// transactions.
type LastStaffGuard struct {
	db       TxRunner
	lockRows bool
}

// NewLastStaffGuard creates a guard over db.
func NewLastStaffGuard(db TxRunner, lockRows bool) *LastStaffGuard {
	return &LastStaffGuard{db: db, lockRows: lockRows}
}

// Update applies upd to account id. It fails with ErrLastStaffAccount when
// the change would demote or deactivate the only active staff account.
func (g *LastStaffGuard) Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	var updated *Account
	err := g.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		repo := NewSQLAccountRepository(tx)
		if _, err := g.checkRemoval(ctx, tx, repo, id, &upd); err != nil {
			return err
		}
		var err error
		updated, err = repo.Update(ctx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes account id and returns it as it was before deletion. It
// fails with ErrLastStaffAccount when id is the only active staff account.
func (g *LastStaffGuard) Delete(ctx context.Context, id string) (*Account, error) {
	var deleted *Account
	err := g.db.WithTx(ctx, func(ctx context.Context, tx database.DBTX) error {
		repo := NewSQLAccountRepository(tx)
		target, err := g.checkRemoval(ctx, tx, repo, id, nil)
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, id); err != nil {
			return err
		}
		deleted = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// checkRemoval counts (and on PostgreSQL locks) the active staff before
// reading the target, so the decision sees every committed removal.
// A nil upd means deletion.
func (g *LastStaffGuard) checkRemoval(ctx context.Context, tx database.DBTX, repo *SQLAccountRepository, id string, upd *AccountUpdate) (*Account, error) {
	staff, err := g.activeStaff(ctx, tx, repo)
	if err != nil {
		return nil, err
	}
	target, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if removesStaff(target, upd) && staff <= 1 {
		return nil, ErrLastStaffAccount
	}
	return target, nil
}

func (g *LastStaffGuard) activeStaff(ctx context.Context, tx database.DBTX, repo *SQLAccountRepository) (int, error) {
	if !g.lockRows {
		return repo.CountActiveStaff(ctx)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM accounts WHERE role = $1 AND is_active = $2 ORDER BY id FOR UPDATE`,
		string(RoleStaff), true,
	)
	if err != nil {
		return 0, fmt.Errorf("locking staff accounts: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("locking staff accounts: %w", err)
	}
	return n, nil
}

// removesStaff reports whether applying upd to a (or deleting a, when upd
// is nil) takes away an active staff account.
func removesStaff(a *Account, upd *AccountUpdate) bool {
	if a.Role != RoleStaff || !a.IsActive {
		return false
	}
	if upd == nil {
		return true
	}
	demotes := upd.Role != nil && *upd.Role != RoleStaff
	deactivates := upd.IsActive != nil && !*upd.IsActive
	return demotes || deactivates
}
