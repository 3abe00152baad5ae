// Package daemon coordinates the long-running gamevault process.
//
// It wires the engine, the HTTP API and the webhook intake into a single
// lifecycle with flock-based locking to prevent multiple instances. The
// daemon starts the webhook dispatcher and the reconcile scheduler and
// stops them in order on shutdown.
//
// Keep orchestration logic here: resolution, webhook filtering and backlog
// passes live in their own packages while the daemon focuses on startup,
// shutdown, and the API surface.
package daemon
