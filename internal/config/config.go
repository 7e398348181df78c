// ABOUTME: Configuration loading and parsing for comm-core
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete comm-core configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	SecureStore SecureStoreConfig `yaml:"secure_store" toml:"secure_store"`
	Network     NetworkConfig     `yaml:"network" toml:"network"`
	Crypto      CryptoConfig      `yaml:"crypto" toml:"crypto"`
	Workers     WorkersConfig     `yaml:"workers" toml:"workers"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SecureStoreConfig holds the secret store location and the key the account secret lives under
type SecureStoreConfig struct {
	Path       string `yaml:"path" toml:"path"`
	AccountKey string `yaml:"account_key" toml:"account_key"`
}

// NetworkConfig holds the relay endpoint
type NetworkConfig struct {
	Hostname    string        `yaml:"hostname" toml:"hostname"`
	Port        int           `yaml:"port" toml:"port"`
	DialTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	DialTimeoutRaw string `yaml:"dial_timeout" toml:"dial_timeout"`
}

// CryptoConfig holds account bootstrap parameters
type CryptoConfig struct {
	SecretLength int `yaml:"secret_length" toml:"secret_length"`
	OneTimeKeys  int `yaml:"one_time_keys" toml:"one_time_keys"`
}

// WorkersConfig controls the subsystem workers.
// Synchronous runs every task inline on the calling goroutine (no worker goroutines).
type WorkersConfig struct {
	Synchronous bool `yaml:"synchronous" toml:"synchronous"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// maxOneTimeKeys is the most one-time keys an olm account holds.
const maxOneTimeKeys = 100

// Default returns a configuration with every optional field set.
// Database and secure store paths are left empty.
func Default() *Config {
	return &Config{
		SecureStore: SecureStoreConfig{AccountKey: "comm.encryptionKey"},
		Network: NetworkConfig{
			Hostname:    "localhost",
			Port:        50051,
			DialTimeout: 10 * time.Second,
		},
		Crypto: CryptoConfig{
			SecretLength: 64,
			OneTimeKeys:  50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Values
// present in the file override Default(). Environment variables in the
// format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.SecureStore.Path == "" {
		return fmt.Errorf("secure_store.path is required")
	}
	if c.SecureStore.AccountKey == "" {
		return fmt.Errorf("secure_store.account_key must not be empty")
	}

	if c.Network.Port <= 0 || c.Network.Port > 65535 {
		return fmt.Errorf("network.port %d is out of range", c.Network.Port)
	}
	if c.Network.DialTimeout < 0 {
		return fmt.Errorf("network.dial_timeout must not be negative")
	}

	if c.Crypto.SecretLength < 32 {
		return fmt.Errorf("crypto.secret_length must be at least 32, got %d", c.Crypto.SecretLength)
	}
	if c.Crypto.OneTimeKeys < 1 || c.Crypto.OneTimeKeys > maxOneTimeKeys {
		return fmt.Errorf("crypto.one_time_keys must be between 1 and %d, got %d", maxOneTimeKeys, c.Crypto.OneTimeKeys)
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Network.DialTimeoutRaw != "" {
		cfg.Network.DialTimeout, err = time.ParseDuration(cfg.Network.DialTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dial_timeout %q: %w", cfg.Network.DialTimeoutRaw, err)
		}
	}

	return nil
}

// Sample is the configuration written by `commcore init`.
const Sample = `# comm-core configuration

database:
  path: "${HOME}/.local/share/commcore/comm.db"

secure_store:
  path: "${HOME}/.local/share/commcore/secure.json"
  account_key: "comm.encryptionKey"

network:
  hostname: "localhost"  # prefix with https:// for TLS
  port: 50051
  dial_timeout: "10s"

crypto:
  secret_length: 64
  one_time_keys: 50

workers:
  synchronous: false

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json
`
