/*
Package config loads hub settings from YAML or JSON.

# Overview

Config wraps a decoded document and provides typed accessors that return a
default when a key is missing or has the wrong type. Keys may be dot paths
into nested sections:

	cfg, err := config.FromFile("eventrouter.yaml")
	size := cfg.Int("router.cache_size", 1000)
	router := cfg.Section("router")
	mode := router.String("default_mode", "sync")

Decode turns a Config into Settings, starting from DefaultSettings so an
empty document yields the router's zero-configuration behavior:

	settings, err := config.LoadSettings("eventrouter.yaml")

# Environment

LoadSettings overlays variables named EVENTROUTER_<SECTION>__<KEY> on the
file before decoding:

	EVENTROUTER_ROUTER__DEFAULT_MODE=async
	EVENTROUTER_STORE__CLEANUP_INTERVAL=30s

# Type Coercion

Duration accepts a time.ParseDuration string, a number of seconds, or a
time.Duration. Int accepts floats only when they have no fractional part.
Float accepts any numeric kind.

# Retention

Retention entries are keyed by event type. Event types contain dots, so the
entries under store.retention are read by exact key, never as dot paths.
*/
package config
