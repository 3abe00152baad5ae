package testsupport

import (
	"path/filepath"
	"testing"

	"gamevault/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Catalog.ClientID = "test"
	cfgVal.Catalog.AccessToken = "test"
	cfgVal.Catalog.QPS = 100
	cfgVal.Catalog.MaxRetries = 0
	cfgVal.Reconcile.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCatalogURL points the catalog connection at a test server.
func WithCatalogURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.BaseURL = url
	}
}

// WithWebhookSecret enables webhook intake with the given shared secret.
func WithWebhookSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Webhooks.Enabled = true
		b.cfg.Webhooks.Secret = secret
	}
}

// WithAPIToken requires bearer auth on the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithoutCredentials clears the catalog credentials.
func WithoutCredentials() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Catalog.ClientID = ""
		b.cfg.Catalog.ClientSecret = ""
		b.cfg.Catalog.AccessToken = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
