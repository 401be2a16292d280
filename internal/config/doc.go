// Package config loads photocull configuration from an optional TOML file
// with environment variable overrides.
package config
