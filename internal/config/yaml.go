package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config in the on-disk agrivia.yaml layout, with
// durations written the way a person would type them.
type fileConfig struct {
	Server struct {
		Host            string   `yaml:"host"`
		Port            int      `yaml:"port"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
		CORSOrigins     []string `yaml:"cors_origins"`
		SecureCookies   bool     `yaml:"secure_cookies"`
		TrustedProxy    bool     `yaml:"trusted_proxy"`
	} `yaml:"server"`
	Database struct {
		Driver  string `yaml:"driver"`
		DSN     string `yaml:"dsn"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"database"`
	Auth struct {
		TokenSecret          string `yaml:"token_secret"`
		SessionSecret        string `yaml:"session_secret"`
		TokenTTL             string `yaml:"token_ttl"`
		SessionIdleTimeout   string `yaml:"session_idle_timeout"`
		SessionMaxLifetime   string `yaml:"session_max_lifetime"`
		SessionSweepInterval string `yaml:"session_sweep_interval"`
		BcryptCost           int    `yaml:"bcrypt_cost"`
		LoginRatePerMinute   int    `yaml:"login_rate_per_minute"`
	} `yaml:"auth"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// MarshalYAML writes c in the agrivia.yaml layout.
func (c Config) MarshalYAML() (interface{}, error) {
	var f fileConfig
	f.Server.Host = c.Server.Host
	f.Server.Port = c.Server.Port
	f.Server.ShutdownTimeout = c.Server.ShutdownTimeout.String()
	f.Server.CORSOrigins = c.Server.CORSOrigins
	f.Server.SecureCookies = c.Server.SecureCookies
	f.Server.TrustedProxy = c.Server.TrustedProxy

	f.Database.Driver = c.Database.Driver
	f.Database.DSN = c.Database.DSN
	f.Database.DataDir = c.Database.DataDir

	f.Auth.TokenSecret = c.Auth.TokenSecret
	f.Auth.SessionSecret = c.Auth.SessionSecret
	f.Auth.TokenTTL = c.Auth.TokenTTL.String()
	f.Auth.SessionIdleTimeout = c.Auth.SessionIdleTimeout.String()
	f.Auth.SessionMaxLifetime = c.Auth.SessionMaxLifetime.String()
	f.Auth.SessionSweepInterval = c.Auth.SessionSweepInterval.String()
	f.Auth.BcryptCost = c.Auth.BcryptCost
	f.Auth.LoginRatePerMinute = c.Auth.LoginRatePerMinute

	f.Log.Level = c.Log.Level
	f.Log.Format = c.Log.Format
	return f, nil
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(*c)
}

const defaultHeader = `# agrivia configuration
#
# Every key can be overridden by an environment variable, e.g.
#   AGRIVIA_AUTH_TOKEN_SECRET, AGRIVIA_DATABASE_DSN.
# Both secrets are required (32+ bytes each, and different) unless
# the server runs with --dev.

`

// WriteDefault writes the default configuration to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(defaultHeader), data...), 0o600)
}
