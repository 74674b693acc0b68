// Package config loads service configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// GYM_CONFIG_FILE, then GYM_* environment variables; later sources win.
// LoadConfig validates the result before returning it.
package config
