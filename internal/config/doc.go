// Package config loads, validates, and provides defaults for Spool's TOML
// configuration file.
package config
