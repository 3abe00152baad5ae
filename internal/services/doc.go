// Package services defines shared utilities consumed by the catalog client,
// resolver, webhook pipeline and reconciler.
//
// Key responsibilities:
//   - Context helpers that stamp user IDs, trigger sources, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so every component
//     classifies failures the same way (transient, not found, fatal).
//
// Use these helpers when wiring new components so retry and abort decisions
// stay uniform across the engine.
package services
