// Package config loads, normalizes, validates, and persists streamkeep
// configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours .env files and environment
// overrides for replication credentials. The Config type centralizes every
// knob the daemon and CLI need: capture parameters, monitor timing, merge
// scheduling, and replication targets.
//
// Holder wraps a loaded Config for the running daemon so the settings-update
// path and on-demand reloads swap values atomically while background loops
// keep reading consistent snapshots.
package config
