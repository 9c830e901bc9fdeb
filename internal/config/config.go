package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// AGRIVIA_AUTH_TOKEN_SECRET.
const EnvPrefix = "AGRIVIA"

// MinSecretLength is the minimum length in bytes of a signing secret.
const MinSecretLength = 32

// Config is the complete runtime configuration. It is built once at startup
// and passed down by pointer.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`

	// TrustedProxy makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Enable only behind a proxy that sets them.
	TrustedProxy bool `mapstructure:"trusted_proxy"`
}

// DatabaseConfig selects the credential store backend.
type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
	DataDir string `mapstructure:"data_dir"`
}

// AuthConfig controls tokens, sessions and password hashing.
type AuthConfig struct {
	TokenSecret          string        `mapstructure:"token_secret"`
	SessionSecret        string        `mapstructure:"session_secret"`
	TokenTTL             time.Duration `mapstructure:"token_ttl"`
	SessionIdleTimeout   time.Duration `mapstructure:"session_idle_timeout"`
	SessionMaxLifetime   time.Duration `mapstructure:"session_max_lifetime"`
	SessionSweepInterval time.Duration `mapstructure:"session_sweep_interval"`
	BcryptCost           int           `mapstructure:"bcrypt_cost"`
	LoginRatePerMinute   int           `mapstructure:"login_rate_per_minute"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns a Config pre-filled with defaults. Secrets are left empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			SecureCookies:   true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Auth: AuthConfig{
			TokenTTL:             7 * 24 * time.Hour,
			SessionIdleTimeout:   30 * time.Minute,
			SessionMaxLifetime:   12 * time.Hour,
			SessionSweepInterval: 10 * time.Minute,
			BcryptCost:           12,
			LoginRatePerMinute:   10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key with v so that environment overrides are
// seen by Unmarshal even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.secure_cookies", d.Server.SecureCookies)
	v.SetDefault("server.trusted_proxy", d.Server.TrustedProxy)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.data_dir", "")

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.session_idle_timeout", d.Auth.SessionIdleTimeout)
	v.SetDefault("auth.session_max_lifetime", d.Auth.SessionMaxLifetime)
	v.SetDefault("auth.session_sweep_interval", d.Auth.SessionSweepInterval)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)
	v.SetDefault("auth.login_rate_per_minute", d.Auth.LoginRatePerMinute)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// ConfigureEnv makes v read AGRIVIA_SECTION_KEY environment variables.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the effective configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case "sqlite":
	case "postgres", "mysql":
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not one of sqlite, postgres, mysql", c.Database.Driver))
	}

	if len(c.Auth.TokenSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth.token_secret must be at least %d bytes", MinSecretLength))
	}
	if len(c.Auth.SessionSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth.session_secret must be at least %d bytes", MinSecretLength))
	}
	if c.Auth.TokenSecret != "" && c.Auth.TokenSecret == c.Auth.SessionSecret {
		errs = append(errs, errors.New("auth.token_secret and auth.session_secret must differ"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.SessionIdleTimeout <= 0 || c.Auth.SessionMaxLifetime <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	} else if c.Auth.SessionIdleTimeout > c.Auth.SessionMaxLifetime {
		errs = append(errs, errors.New("auth.session_idle_timeout exceeds auth.session_max_lifetime"))
	}
	if c.Auth.SessionSweepInterval <= 0 {
		errs = append(errs, errors.New("auth.session_sweep_interval must be positive"))
	}
	if c.Auth.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("auth.login_rate_per_minute must not be negative"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// ApplyDev adjusts c for local development: debug logging, plain-HTTP
// cookies, and random per-process secrets where none are configured.
// Sessions and tokens do not survive a restart in this mode.
func (c *Config) ApplyDev() error {
	c.Log.Level = "debug"
	c.Server.SecureCookies = false
	if c.Auth.TokenSecret == "" {
		s, err := randomSecret()
		if err != nil {
			return err
		}
		c.Auth.TokenSecret = s
	}
	if c.Auth.SessionSecret == "" {
		s, err := randomSecret()
		if err != nil {
			return err
		}
		c.Auth.SessionSecret = s
	}
	return nil
}

// Redacted returns a copy of c with secrets masked.
func (c Config) Redacted() Config {
	c.Auth.TokenSecret = redact(c.Auth.TokenSecret)
	c.Auth.SessionSecret = redact(c.Auth.SessionSecret)
	c.Database.DSN = redact(c.Database.DSN)
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func randomSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
