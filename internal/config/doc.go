// Package config loads, normalizes, and validates tapedeck configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TAPEDECK_SOURCE_URL. The Config type centralizes every knob the daemon and
// CLI need: capture invocation, watchdog timeouts, staged shutdown limits,
// restart backoff, and retention caps.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a parsed retention size, and clear validation errors.
package config
