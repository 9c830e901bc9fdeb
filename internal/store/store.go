package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Options selects and locates the backing database.
type Options struct {
	Driver  Dialect
	DSN     string
	DataDir string // SQLite only; ignored when DSN is set
}

// Store is the credential store. It exclusively owns account and session
// records; every statement borrows a pooled connection for its duration only.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewStore opens a SQLite store under dataDir. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(context.Background(), Options{Driver: DialectSQLite, DataDir: dataDir})
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DialectSQLite
	}

	driverName, dsn, err := resolveDSN(opts)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	if opts.Driver == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	}

	s := &Store{db: db, dialect: opts.Driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", opts.Driver, err)
	}
	return s, nil
}

// newWithDB wraps an existing handle without migrating. Used by tests.
func newWithDB(db *sqlx.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func resolveDSN(opts Options) (driverName, dsn string, err error) {
	switch opts.Driver {
	case DialectSQLite:
		if opts.DSN != "" {
			return "sqlite", opts.DSN, nil
		}
		if opts.DataDir == "" {
			return "sqlite", ":memory:?_journal_mode=WAL&_time_format=sqlite", nil
		}
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return "", "", fmt.Errorf("create data dir: %w", err)
		}
		return "sqlite", filepath.Join(opts.DataDir, "agrivia.db") + "?_journal_mode=WAL&_busy_timeout=5000&_time_format=sqlite", nil

	case DialectPostgres:
		if opts.DSN == "" {
			return "", "", fmt.Errorf("postgres requires a dsn")
		}
		return "pgx", opts.DSN, nil

	case DialectMySQL:
		if opts.DSN == "" {
			return "", "", fmt.Errorf("mysql requires a dsn")
		}
		cfg, err := mysql.ParseDSN(opts.DSN)
		if err != nil {
			return "", "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Timestamps scan into time.Time, and UPDATE reports matched rows so
		// an unchanged row is not mistaken for a missing one.
		cfg.ParseTime = true
		cfg.ClientFoundRows = true
		return "mysql", cfg.FormatDSN(), nil

	default:
		return "", "", fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
