// Package engine assembles the catalog connection, resolver, webhook
// pipeline and reconciler from configuration. The daemon and the CLI share
// one Engine so both exercise the same wiring.
package engine
