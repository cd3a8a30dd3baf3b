// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "shopdb.yaml", `
storage:
  path: "/var/lib/shopdb/blocks.db"
  backup_interval: "90s"
  privileged_key: "p"
  tenant_key: "t"
bootstrap:
  admin_email: "owner@example.com"
  admin_password: "s3cret"
logging:
  level: "debug"
  format: "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/shopdb/blocks.db", cfg.Storage.Path)
	assert.Equal(t, 90*time.Second, cfg.Storage.BackupInterval)
	assert.Equal(t, "p", cfg.Storage.PrivilegedKey)
	assert.Equal(t, "t", cfg.Storage.TenantKey)
	assert.Equal(t, "owner@example.com", cfg.Bootstrap.AdminEmail)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "shopdb.toml", `
[storage]
path = "/tmp/blocks.db"
backup_interval = "1h"

[logging]
level = "warn"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/blocks.db", cfg.Storage.Path)
	assert.Equal(t, time.Hour, cfg.Storage.BackupInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format, "unset keys keep defaults")
	assert.Equal(t, "shopdb_tenant", cfg.Storage.TenantKey)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "shopdb.yaml", "logging:\n  level: error\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Storage, cfg.Storage)
	assert.Equal(t, def.Bootstrap, cfg.Bootstrap)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SHOPDB_PASSWORD", "from-env")
	path := writeFile(t, "shopdb.yaml", `
bootstrap:
  admin_password: "${TEST_SHOPDB_PASSWORD}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bootstrap.AdminPassword)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"bad duration":       "storage:\n  backup_interval: soon\n",
		"negative duration":  "storage:\n  backup_interval: -1m\n",
		"shared keys":        "storage:\n  privileged_key: same\n  tenant_key: same\n",
		"bad level":          "logging:\n  level: loud\n",
		"bad format":         "logging:\n  format: xml\n",
		"empty password env": "bootstrap:\n  admin_password: \"${TEST_SHOPDB_UNSET_VAR}\"\n",
		"invalid yaml":       "storage: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "shopdb.yaml", content))
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWrite_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "shopdb.yaml")
	cfg := Default()
	cfg.Logging.Level = "debug"
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("SHOPDB_CONFIG", "/etc/shopdb.toml")
	assert.Equal(t, "/etc/shopdb.toml", DefaultPath())

	t.Setenv("SHOPDB_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "shopdb", "shopdb.yaml"), DefaultPath())
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
