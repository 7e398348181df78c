// Package config handles configuration loading for comm-core.
//
// # Overview
//
// Configuration is loaded from a YAML file, or a TOML file when the path ends
// in .toml, with environment variable expansion. Values missing from the
// file keep the defaults from Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COMMCORE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/commcore/config.yaml
//  3. ~/.config/commcore/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${HOME}/.local/share/commcore/comm.db"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
//	database:
//	  path: "./comm.db"                # required
//
//	secure_store:
//	  path: "./secure.json"            # required
//	  account_key: "comm.encryptionKey"
//
//	network:
//	  hostname: "localhost"            # https:// prefix selects TLS
//	  port: 50051
//	  dial_timeout: "10s"
//
//	crypto:
//	  secret_length: 64
//	  one_time_keys: 50
//
//	workers:
//	  synchronous: false               # true runs every task inline
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/commcore/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
