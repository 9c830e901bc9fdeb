package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/agrivia/accounts/internal/config"
	"github.com/agrivia/accounts/internal/service"
	"github.com/agrivia/accounts/internal/store"
)

// loadConfig decodes the effective configuration. It does not validate:
// commands that only touch the store have no use for secrets.
func loadConfig() (*config.Config, error) {
	if cfgReadErr != nil {
		return nil, fmt.Errorf("read config %s: %w", cfgFile, cfgReadErr)
	}
	return config.Load(viper.GetViper())
}

// resolveDataDir returns the configured SQLite data directory, or
// ~/.agrivia as fallback.
func resolveDataDir(cfg *config.Config) string {
	if cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".agrivia")
}

// openStore opens the configured credential store and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	opts := store.Options{
		Driver: store.Dialect(cfg.Database.Driver),
		DSN:    cfg.Database.DSN,
	}
	if opts.Driver == store.DialectSQLite && opts.DSN == "" {
		opts.DataDir = resolveDataDir(cfg)
		if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// newLogger builds the process logger from the log section.
func newLogger(lc config.LogConfig) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// services wires the account service stack over st.
type services struct {
	tokens   *service.TokenService
	sessions *service.SessionStore
	guard    *service.Guard
	accounts *service.AccountService
}

func newServices(st *store.Store, cfg *config.Config, logger *slog.Logger) services {
	tokens := service.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	sessions := service.NewSessionStore(st, service.SessionOptions{
		Secret:      cfg.Auth.SessionSecret,
		IdleTimeout: cfg.Auth.SessionIdleTimeout,
		MaxLifetime: cfg.Auth.SessionMaxLifetime,
		Logger:      logger,
	})
	return services{
		tokens:   tokens,
		sessions: sessions,
		guard:    service.NewGuard(st, tokens, sessions, logger),
		accounts: service.NewAccountService(st, service.NewBcryptHasher(cfg.Auth.BcryptCost), tokens, sessions, logger),
	}
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
