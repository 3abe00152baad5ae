// Package logging assembles structured slog loggers and formatting helpers used
// across gamevault.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so resolver, webhook and
// reconcile code can tag log lines with user IDs, trigger sources, and
// correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
