package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateWebhooks(); err != nil {
		return err
	}
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeoutSeconds <= 0 {
		return errors.New("notifications.request_timeout_seconds must be positive")
	}
	return c.validateLogging()
}

func (c *Config) validateCatalog() error {
	if c.Catalog.ClientID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/gamevault/config.toml"
		}
		return fmt.Errorf("catalog.client_id is required. Set GAMEVAULT_CATALOG_CLIENT_ID env var or edit %s (create with 'gamevault config init')", defaultPath)
	}
	if c.Catalog.ClientSecret == "" && c.Catalog.AccessToken == "" {
		return errors.New("catalog.client_secret or catalog.access_token must be set")
	}
	if c.Catalog.QPS <= 0 {
		return errors.New("catalog.qps must be positive")
	}
	if c.Catalog.MaxBatchSize > maxCatalogBatchSize {
		return fmt.Errorf("catalog.max_batch_size must be at most %d", maxCatalogBatchSize)
	}
	if c.Catalog.MaxRetries < 0 {
		return errors.New("catalog.max_retries must be >= 0")
	}
	if c.Catalog.MaxConnections < 0 {
		return errors.New("catalog.max_connections must be >= 0")
	}
	if c.Catalog.MaxBackoffMillis < c.Catalog.InitialBackoffMillis {
		return errors.New("catalog.max_backoff_ms must be >= catalog.initial_backoff_ms")
	}
	return ensurePositiveMap(map[string]int{
		"catalog.max_batch_size":          c.Catalog.MaxBatchSize,
		"catalog.fan_out":                 c.Catalog.FanOut,
		"catalog.request_timeout_seconds": c.Catalog.RequestTimeoutSeconds,
	})
}

func (c *Config) validateResolver() error {
	r := c.Resolver
	if r.HighConfidence <= 0 || r.HighConfidence > 1 {
		return errors.New("resolver.high_confidence must be in (0, 1]")
	}
	if r.MinGap < 0 || r.MinGap > 1 {
		return errors.New("resolver.min_gap must be between 0 and 1")
	}
	if r.CandidateCount < 1 {
		return errors.New("resolver.candidate_count must be >= 1")
	}
	for key, weight := range map[string]float64{
		"resolver.similarity_weight": r.SimilarityWeight,
		"resolver.year_weight":       r.YearWeight,
		"resolver.platform_weight":   r.PlatformWeight,
	} {
		if weight < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if r.SimilarityWeight == 0 {
		return errors.New("resolver.similarity_weight must be positive")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if c.Reconcile.Enabled && c.Reconcile.IntervalMinutes <= 0 {
		return errors.New("reconcile.interval_minutes must be positive when reconcile.enabled is true")
	}
	return nil
}

func (c *Config) validateWebhooks() error {
	if !c.Webhooks.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Webhooks.Secret) == "" {
		return errors.New("webhooks.secret must be set when webhooks.enabled is true (or set GAMEVAULT_WEBHOOK_SECRET)")
	}
	if c.Webhooks.PopularityThreshold < 0 || c.Webhooks.EarlyAccessThreshold < 0 {
		return errors.New("webhooks popularity thresholds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
