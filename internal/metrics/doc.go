// Package metrics owns the Prometheus collectors exported by gamevaultd.
//
// Collectors live on a private registry so tests can build isolated
// instances. Every recording method is safe on a nil *Metrics, which lets
// library code record unconditionally while CLI one-shots skip metrics.
package metrics
