package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gamevault/internal/api"
	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/engine"
	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/ranking"
)

type commandContext struct {
	configFlag *string
	apiFlag    *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	if cfg, err := c.ensureConfig(); err == nil {
		return cfg.Paths.APIBind
	}
	return ""
}

func (c *commandContext) withClient(fn func(*api.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	address := c.apiAddress()
	client, err := api.NewClient(address, cfg.Paths.APIToken)
	if err != nil {
		return wrapClientError(err, address)
	}
	if err := fn(client); err != nil {
		return wrapClientError(err, address)
	}
	return nil
}

// catalogClient builds an in-process catalog client for commands that do
// not need the daemon.
func (c *commandContext) catalogClient(ctx context.Context) (*catalog.Connection, *catalog.BatchClient, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, nil, nil, err
	}
	conn, batch, err := engine.NewCatalog(ctx, cfg, logger, metrics.New())
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, batch, logger, nil
}

func (c *commandContext) ranker(ctx context.Context) (*ranking.Ranker, error) {
	_, batch, logger, err := c.catalogClient(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewRanker(c.config, batch, logger), nil
}

func wrapClientError(err error, address string) error {
	switch {
	case errors.Is(err, api.ErrAPIUnavailable):
		return fmt.Errorf("%w at %s; start it with `gamevaultd`", api.ErrAPIUnavailable, address)
	default:
		return err
	}
}

// colorEnabled reports whether cmd writes to a terminal that accepts color.
func colorEnabled(cmd *cobra.Command) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
