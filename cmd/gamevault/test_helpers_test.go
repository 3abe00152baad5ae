package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/daemon"
	"gamevault/internal/engine"
	"gamevault/internal/logging"
	"gamevault/internal/testsupport"
)

const halfLife2 int64 = 72

type cliTestEnv struct {
	cfg        *config.Config
	catalog    *testsupport.FakeCatalog
	daemon     *daemon.Daemon
	configPath string
	apiAddr    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	fake := testsupport.NewFakeCatalog(t)
	fake.AddGame(catalog.Game{
		ID:               halfLife2,
		Name:             "Half-Life 2",
		Slug:             "half-life-2",
		Category:         catalog.CategoryMain,
		FirstReleaseDate: 1100736000,
		Rating:           92,
		Follows:          500,
		Platforms:        []int64{catalog.PlatformPC},
		UpdatedAt:        100,
	})

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithCatalogURL(fake.URL())}, opts...)...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	eng, err := engine.New(context.Background(), cfg, store, logging.NewNop())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := daemon.New(cfg, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		catalog:    fake,
		daemon:     d,
		configPath: configPath,
		apiAddr:    d.Addr(),
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", env.configPath, "--api", env.apiAddr}, args...))
}

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
