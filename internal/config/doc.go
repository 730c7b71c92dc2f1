// Package config handles configuration loading for ws-manager.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. A missing file is not an error at the CLI level; defaults are
// used instead, with the database under the XDG data directory.
//
// # Configuration File
//
//	database:
//	  path: "${HOME}/.local/share/ws-manager/ws-manager.db"
//
//	heartbeat:
//	  timeout: "30s"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables with the
// ${VAR_NAME} syntax; unset variables expand to the empty string.
package config
