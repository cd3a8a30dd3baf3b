// Package config handles configuration loading for shopdb.
//
// # Configuration File
//
// Default location (first match):
//
//  1. Path from SHOPDB_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/shopdb/shopdb.yaml
//  3. ~/.config/shopdb/shopdb.yaml
//
// A file ending in .toml is read as TOML; anything else as YAML. Keys
// missing from the file keep their defaults, and a missing file means
// all defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	bootstrap:
//	  admin_password: "${SHOPDB_ADMIN_PASSWORD}"
//
// # Configuration Sections
//
//	storage:
//	  path: "~/.local/share/shopdb/blocks.db"
//	  backup_interval: "10m"
//	  privileged_key: "shopdb_privileged"
//	  tenant_key: "shopdb_tenant"
//
//	bootstrap:
//	  admin_email: "admin@shopdb.local"
//	  admin_password: "change-me-now"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// The bootstrap credentials are only used when the privileged store is
// created for the first time.
package config
