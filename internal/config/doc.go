// Package config loads, normalizes, and validates gamevault configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GAMEVAULT_CATALOG_CLIENT_ID. The Config type centralizes every knob the
// daemon and CLI need: catalog credentials and qps budget, resolver
// thresholds, reconcile schedule, webhook intake and the ntfy topic.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
