// Package config handles configuration loading for slotforge.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files (chosen by the .toml
// extension) with environment variable expansion, defaults and validation.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from SLOTFORGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/slotforge/config.yaml
//  3. ~/.config/slotforge/config.yaml
//
// When no file exists the CLI runs with Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  image:
//	    api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Storage:
//
//	storage:
//	  driver: "sqlite"        # sqlite, sqlite3, badger, memory
//	  path: "~/.local/share/slotforge/slotforge.db"
//	  quota_bytes: 5242880    # 0 = unlimited
//
// Generation limits (applied to every provider call):
//
//	generation:
//	  call_timeout: "2m"
//	  rate_limit: 2           # calls per second, 0 = unlimited
//	  rate_burst: 3
//
// Providers, one per kind:
//
//	providers:
//	  song:  { type: "http", base_url: "https://music.example/generate" }
//	  image: { type: "openai", api_key: "${OPENAI_API_KEY}", model: "dall-e-3" }
//	  video: { type: "fake" }
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  textfile: "/var/lib/node_exporter/slotforge.prom"
package config
