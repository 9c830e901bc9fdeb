package store

import (
	"context"
	"fmt"
)

var migrations = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			is_admin INTEGER NOT NULL DEFAULT 0,
			payment_due_date DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			token_hash TEXT UNIQUE NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id)`,
	},

	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			payment_due_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			token_hash TEXT UNIQUE NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions(account_id)`,
	},

	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'active',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			payment_due_date DATETIME(6) NULL,
			created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			updated_at DATETIME(6) NULL,
			UNIQUE KEY uq_accounts_email (email)
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id CHAR(26) PRIMARY KEY,
			account_id BIGINT NOT NULL,
			token_hash CHAR(64) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			last_seen_at DATETIME(6) NOT NULL,
			expires_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_sessions_token_hash (token_hash),
			KEY idx_sessions_account_id (account_id),
			CONSTRAINT fk_sessions_account FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		)`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if s.dialect == DialectSQLite {
		// Foreign keys are off by default in SQLite.
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	for _, m := range migrations[s.dialect] {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
