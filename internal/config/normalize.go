package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeResolver()
	c.normalizeReconcile()
	c.normalizeWebhooks()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = envValue("GAMEVAULT_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	c.Catalog.ClientID = strings.TrimSpace(c.Catalog.ClientID)
	if c.Catalog.ClientID == "" {
		c.Catalog.ClientID = envValue("GAMEVAULT_CATALOG_CLIENT_ID")
	}
	c.Catalog.ClientSecret = strings.TrimSpace(c.Catalog.ClientSecret)
	if c.Catalog.ClientSecret == "" {
		c.Catalog.ClientSecret = envValue("GAMEVAULT_CATALOG_CLIENT_SECRET")
	}
	c.Catalog.AccessToken = strings.TrimSpace(c.Catalog.AccessToken)
	if c.Catalog.AccessToken == "" {
		c.Catalog.AccessToken = envValue("GAMEVAULT_CATALOG_ACCESS_TOKEN")
	}
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = defaultCatalogBaseURL
	}
	c.Catalog.TokenURL = strings.TrimSpace(c.Catalog.TokenURL)
	if c.Catalog.TokenURL == "" {
		c.Catalog.TokenURL = defaultCatalogTokenURL
	}
	if c.Catalog.MaxBatchSize <= 0 {
		c.Catalog.MaxBatchSize = defaultCatalogMaxBatchSize
	}
	if c.Catalog.FanOut <= 0 {
		c.Catalog.FanOut = defaultCatalogFanOut
	}
	if c.Catalog.InitialBackoffMillis <= 0 {
		c.Catalog.InitialBackoffMillis = defaultInitialBackoffMillis
	}
	if c.Catalog.MaxBackoffMillis <= 0 {
		c.Catalog.MaxBackoffMillis = defaultMaxBackoffMillis
	}
	if c.Catalog.RequestTimeoutSeconds <= 0 {
		c.Catalog.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
}

func (c *Config) normalizeResolver() {
	if c.Resolver.SearchLimit <= 0 {
		c.Resolver.SearchLimit = defaultSearchLimit
	}
	if c.Resolver.SearchLimit < c.Resolver.CandidateCount {
		c.Resolver.SearchLimit = c.Resolver.CandidateCount
	}
	if c.Resolver.YearTolerance < 0 {
		c.Resolver.YearTolerance = 0
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.Concurrency <= 0 {
		c.Reconcile.Concurrency = defaultReconcileConcurrency
	}
}

func (c *Config) normalizeWebhooks() {
	c.Webhooks.Secret = strings.TrimSpace(c.Webhooks.Secret)
	if c.Webhooks.Secret == "" {
		c.Webhooks.Secret = envValue("GAMEVAULT_WEBHOOK_SECRET")
	}
	c.Webhooks.PublicURL = strings.TrimRight(strings.TrimSpace(c.Webhooks.PublicURL), "/")
	if c.Webhooks.Workers <= 0 {
		c.Webhooks.Workers = defaultWebhookWorkers
	}
	if c.Webhooks.QueueDepth <= 0 {
		c.Webhooks.QueueDepth = defaultWebhookQueueDepth
	}
	regions := make([]string, 0, len(c.Webhooks.ExcludedRegions))
	seen := make(map[string]struct{}, len(c.Webhooks.ExcludedRegions))
	for _, region := range c.Webhooks.ExcludedRegions {
		normalized := strings.ToLower(strings.TrimSpace(region))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		regions = append(regions, normalized)
	}
	c.Webhooks.ExcludedRegions = regions
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = envValue("GAMEVAULT_NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
