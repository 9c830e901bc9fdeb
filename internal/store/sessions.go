package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrivia/accounts/internal/model"
)

// CreateSession persists a new admin web session.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	const q = `INSERT INTO sessions (id, account_id, token_hash, created_at, last_seen_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, s.db.Rebind(q),
		sess.ID, sess.AccountID, sess.TokenHash, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash looks up a session by the SHA-256 hash of its token.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var sess model.Session
	q := s.db.Rebind(`SELECT id, account_id, token_hash, created_at, last_seen_at, expires_at
		FROM sessions WHERE token_hash = ?`)
	if err := s.db.GetContext(ctx, &sess, q, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session by token hash: %w", err)
	}
	return &sess, nil
}

// TouchSession sets last_seen_at, extending the idle window.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE sessions SET last_seen_at = ? WHERE id = ?"), at, id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session by ID.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAccountSessions removes every session belonging to an account and
// returns how many were removed.
func (s *Store) DeleteAccountSessions(ctx context.Context, accountID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM sessions WHERE account_id = ?"), accountID)
	if err != nil {
		return 0, fmt.Errorf("delete account sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteExpiredSessions removes sessions past their absolute expiry or idle
// since before idleCutoff.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now, idleCutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM sessions WHERE expires_at <= ? OR last_seen_at <= ?"), now, idleCutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
