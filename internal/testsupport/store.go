package testsupport

import (
	"testing"

	"gamevault/internal/config"
	"gamevault/internal/docstore"
)

// MustOpenStore opens the SQLite document store for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *docstore.SQLite {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := docstore.Open(cfg)
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
