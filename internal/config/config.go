package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Catalog contains connection and throughput settings for the game catalog
// service.
type Catalog struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// AccessToken skips the client-credentials exchange when set. Useful for
	// short-lived tokens minted elsewhere.
	AccessToken           string  `toml:"access_token"`
	TokenURL              string  `toml:"token_url"`
	BaseURL               string  `toml:"base_url"`
	QPS                   float64 `toml:"qps"`
	MaxConnections        int     `toml:"max_connections"`
	MaxBatchSize          int     `toml:"max_batch_size"`
	FanOut                int     `toml:"fan_out"`
	MaxRetries            int     `toml:"max_retries"`
	InitialBackoffMillis  int     `toml:"initial_backoff_ms"`
	MaxBackoffMillis      int     `toml:"max_backoff_ms"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
}

// Resolver contains the auto-accept thresholds and ranking weights.
type Resolver struct {
	HighConfidence   float64 `toml:"high_confidence"`
	MinGap           float64 `toml:"min_gap"`
	CandidateCount   int     `toml:"candidate_count"`
	SearchLimit      int     `toml:"search_limit"`
	YearTolerance    int     `toml:"year_tolerance"`
	SimilarityWeight float64 `toml:"similarity_weight"`
	YearWeight       float64 `toml:"year_weight"`
	PlatformWeight   float64 `toml:"platform_weight"`
}

// Reconcile contains settings for the periodic backlog pass.
type Reconcile struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
	Concurrency     int  `toml:"concurrency"`
}

// Webhooks contains settings for inbound catalog update events.
type Webhooks struct {
	Enabled              bool     `toml:"enabled"`
	Secret               string   `toml:"secret"`
	PublicURL            string   `toml:"public_url"`
	Workers              int      `toml:"workers"`
	QueueDepth           int      `toml:"queue_depth"`
	PopularityThreshold  int      `toml:"popularity_threshold"`
	EarlyAccessThreshold int      `toml:"early_access_threshold"`
	ExcludedRegions      []string `toml:"excluded_regions"`
}

// Notifications contains the ntfy endpoint for push alerts.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for gamevault.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Catalog: catalog credentials, qps budget, batching and retries
//   - Resolver: auto-accept thresholds and ranking weights
//   - Reconcile: periodic backlog pass schedule and concurrency
//   - Webhooks: inbound update intake and filter thresholds
//   - Notifications: ntfy push alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Resolver      Resolver      `toml:"resolver"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Webhooks      Webhooks      `toml:"webhooks"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gamevault/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gamevault.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the document store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "gamevault.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "gamevaultd.lock")
}

// ReconcileInterval returns the pause between scheduled backlog passes.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalMinutes) * time.Minute
}

// RequestTimeout returns the per-request deadline for catalog calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeoutSeconds) * time.Second
}

// InitialBackoff returns the first retry delay for failed catalog pages.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.Catalog.InitialBackoffMillis) * time.Millisecond
}

// MaxBackoff caps the retry delay for failed catalog pages.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Catalog.MaxBackoffMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
