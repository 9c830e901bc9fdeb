package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrivia/accounts/internal/model"
)

const accountColumns = `id, name, email, password_hash, status, is_admin, payment_due_date, created_at, updated_at`

// CreateAccount inserts a new account. The ID and CreatedAt fields on a are
// populated after a successful insert. The unique email constraint is the
// only duplicate check that holds under concurrency: a colliding insert
// returns ErrDuplicateEmail.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	a.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO accounts
		(name, email, password_hash, status, is_admin, payment_due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{a.Name, a.Email, a.PasswordHash, string(a.Status), a.IsAdmin, a.PaymentDueDate, a.CreatedAt, a.UpdatedAt}

	if s.dialect == DialectPostgres {
		var id int64
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(q+" RETURNING id"), args...).Scan(&id); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("insert account: %w", err)
		}
		a.ID = id
		return nil
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get account id: %w", err)
	}
	a.ID = id
	return nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	q := s.db.Rebind("SELECT " + accountColumns + " FROM accounts WHERE id = ?")
	if err := s.db.GetContext(ctx, &a, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// GetAccountByEmail returns an account by exact email match, case as stored.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var a model.Account
	q := s.db.Rebind("SELECT " + accountColumns + " FROM accounts WHERE email = ?")
	if err := s.db.GetContext(ctx, &a, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by ID.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.db.SelectContext(ctx, &accounts, "SELECT "+accountColumns+" FROM accounts ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount persists every mutable field of a. UpdatedAt is refreshed
// automatically; ID and CreatedAt are never rewritten.
func (s *Store) UpdateAccount(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()

	const q = `UPDATE accounts SET
		name = ?, email = ?, password_hash = ?, status = ?, is_admin = ?,
		payment_due_date = ?, updated_at = ?
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, s.db.Rebind(q),
		a.Name, a.Email, a.PasswordHash, string(a.Status), a.IsAdmin, a.PaymentDueDate, now, a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update account: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	a.UpdatedAt = &now
	return nil
}

// HasAnyAdmin reports whether at least one admin account exists. This is used
// for first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind("SELECT COUNT(*) FROM accounts WHERE is_admin = ?"), true); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return count > 0, nil
}
