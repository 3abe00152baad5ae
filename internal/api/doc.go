// Package api defines the JSON payloads served by the daemon's HTTP API and
// a small client the CLI uses to call it.
//
// Handlers live in the daemon package; keep this package free of server
// logic so both sides share one set of transport types.
package api
