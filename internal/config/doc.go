// Package config loads, normalizes, and validates flowq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FLOWQ_API_TOKEN. The Config type centralizes every knob the daemon and CLI
// need: where the queue database lives, how claims retry, how long an agent
// may hold an item before the supervisor reclaims it, and how long finished
// items are retained.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
