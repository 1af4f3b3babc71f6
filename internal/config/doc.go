// Package config loads, normalizes, and validates casework configuration.
//
// Configuration is read from a TOML file. Defaults are applied first, then
// file values, then normalization (path expansion, trimming) and validation.
// All consumers receive a fully normalized Config.
package config
