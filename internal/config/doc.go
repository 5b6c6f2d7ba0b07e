// Package config loads, normalizes, and validates the TOML configuration
// used by the factsheet service and CLI.
package config
