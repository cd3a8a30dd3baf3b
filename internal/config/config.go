// ABOUTME: Configuration loading and parsing for shopdb
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete shopdb configuration
type Config struct {
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Bootstrap BootstrapConfig `yaml:"bootstrap" toml:"bootstrap"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// StorageConfig holds block storage configuration
type StorageConfig struct {
	Path          string `yaml:"path" toml:"path"`
	PrivilegedKey string `yaml:"privileged_key" toml:"privileged_key"`
	TenantKey     string `yaml:"tenant_key" toml:"tenant_key"`

	BackupInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string value for unmarshaling
	BackupIntervalRaw string `yaml:"backup_interval" toml:"backup_interval"`
}

// BootstrapConfig holds the credentials of the seeded admin account
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email" toml:"admin_email"`
	AdminPassword string `yaml:"admin_password" toml:"admin_password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a complete configuration with every field set.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:              filepath.Join(dataDir(), "blocks.db"),
			PrivilegedKey:     "shopdb_privileged",
			TenantKey:         "shopdb_tenant",
			BackupInterval:    10 * time.Minute,
			BackupIntervalRaw: "10m",
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    "admin@shopdb.local",
			AdminPassword: "change-me-now",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location: $SHOPDB_CONFIG, then
// $XDG_CONFIG_HOME/shopdb/shopdb.yaml, then ~/.config/shopdb/shopdb.yaml.
func DefaultPath() string {
	if p := os.Getenv("SHOPDB_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shopdb", "shopdb.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "shopdb.yaml"
	}
	return filepath.Join(home, ".config", "shopdb", "shopdb.yaml")
}

func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "shopdb")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "shopdb")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Fields absent from the file keep their Default values.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Write stores cfg as YAML at path, creating parent directories.
func Write(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Storage.PrivilegedKey == "" || c.Storage.TenantKey == "" {
		return fmt.Errorf("storage.privileged_key and storage.tenant_key are required")
	}
	if c.Storage.PrivilegedKey == c.Storage.TenantKey {
		return fmt.Errorf("storage.privileged_key and storage.tenant_key must differ (both %q)", c.Storage.TenantKey)
	}
	if c.Storage.BackupInterval <= 0 {
		return fmt.Errorf("storage.backup_interval must be positive")
	}
	if c.Bootstrap.AdminEmail == "" || c.Bootstrap.AdminPassword == "" {
		return fmt.Errorf("bootstrap.admin_email and bootstrap.admin_password are required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Storage.BackupIntervalRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Storage.BackupIntervalRaw)
	if err != nil {
		return fmt.Errorf("parsing backup_interval %q: %w", cfg.Storage.BackupIntervalRaw, err)
	}
	cfg.Storage.BackupInterval = d
	return nil
}
