// Package daemonctl launches and stops the gamevaultd process on behalf of
// the CLI. Readiness and shutdown are observed through the daemon HTTP API.
package daemonctl
