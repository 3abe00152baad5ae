package preflight

import (
	"context"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The catalog check is skipped when conn is nil.
func RunAll(ctx context.Context, cfg *config.Config, conn catalog.Doer) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if conn != nil {
		results = append(results, CheckCatalog(ctx, conn, cfg.RequestTimeout()))
	} else {
		results = append(results, Result{Name: "Catalog", Detail: "credentials missing"})
	}
	return results
}

// Failed returns the names of checks that did not pass.
func Failed(results []Result) []string {
	var names []string
	for _, r := range results {
		if !r.Passed {
			names = append(names, r.Name)
		}
	}
	return names
}
