package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/services"
)

const maxPageSize = 500

// maxExternalPageSize leaves room in a full response for UIDs that map to
// more than one record.
const maxExternalPageSize = maxPageSize / 2

// BatchOptions tunes paging and retry behavior.
type BatchOptions struct {
	MaxBatchSize   int
	FanOut         int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultBatchOptions mirrors the config defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{
		MaxBatchSize:   maxPageSize,
		FanOut:         4,
		MaxRetries:     4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

func (o BatchOptions) normalized() BatchOptions {
	def := DefaultBatchOptions()
	if o.MaxBatchSize <= 0 || o.MaxBatchSize > maxPageSize {
		o.MaxBatchSize = def.MaxBatchSize
	}
	if o.FanOut <= 0 {
		o.FanOut = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = def.InitialBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Result holds either a value or the error that prevented fetching it.
type Result[V any] struct {
	Value V
	Err   error
}

// GameResult is the per-ID result of GetGames.
type GameResult = Result[Game]

// ExternalResult is the per-UID result of GetExternalGames.
type ExternalResult = Result[ExternalGame]

// BatchClient pages lookups through a Doer with bounded fan-out and retries.
type BatchClient struct {
	doer    Doer
	opts    BatchOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// BatchOption configures a BatchClient.
type BatchOption func(*BatchClient)

// WithBatchLogger sets the logger used for retry diagnostics.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchClient) {
		if logger != nil {
			b.logger = logging.NewComponentLogger(logger, "catalog-batch")
		}
	}
}

// WithBatchMetrics records page outcomes.
func WithBatchMetrics(m *metrics.Metrics) BatchOption {
	return func(b *BatchClient) {
		b.metrics = m
	}
}

// NewBatchClient wraps doer. Zero option fields fall back to defaults.
func NewBatchClient(doer Doer, opts BatchOptions, extra ...BatchOption) *BatchClient {
	b := &BatchClient{
		doer:   doer,
		opts:   opts.normalized(),
		logger: logging.NewNop(),
	}
	for _, opt := range extra {
		opt(b)
	}
	return b
}

// Options returns the effective options.
func (b *BatchClient) Options() BatchOptions {
	return b.opts
}

// GetGames fetches games by catalog ID. Every distinct input ID appears in
// the result exactly once.
func (b *BatchClient) GetGames(ctx context.Context, ids []int64) map[int64]GameResult {
	return runPages(ctx, b, ids, b.opts.MaxBatchSize, func(ctx context.Context, page []int64) (map[int64]Game, error) {
		raw, err := b.doer.Do(ctx, EndpointGames, gamesByIDQuery(page))
		if err != nil {
			return nil, err
		}
		var games []Game
		if err := json.Unmarshal(raw, &games); err != nil {
			return nil, services.Wrap(services.ErrValidation, "catalog", "get games", "decode response", err)
		}
		found := make(map[int64]Game, len(games))
		for _, g := range games {
			found[g.ID] = g
		}
		return found, nil
	})
}

// GetGame fetches one game.
func (b *BatchClient) GetGame(ctx context.Context, id int64) (Game, error) {
	res := b.GetGames(ctx, []int64{id})[id]
	return res.Value, res.Err
}

// GetExternalGames maps storefront UIDs to catalog records. Unsupported
// storefronts fail every key with a validation error.
func (b *BatchClient) GetExternalGames(ctx context.Context, storefront string, uids []string) map[string]ExternalResult {
	category, ok := ExternalSource(storefront)
	if !ok {
		err := services.Wrap(services.ErrValidation, "catalog", "get external games", fmt.Sprintf("unsupported storefront %q", storefront), nil)
		out := make(map[string]ExternalResult, len(uids))
		for _, uid := range uids {
			out[uid] = ExternalResult{Err: err}
		}
		return out
	}
	return runPages(ctx, b, uids, min(b.opts.MaxBatchSize, maxExternalPageSize), func(ctx context.Context, page []string) (map[string]ExternalGame, error) {
		raw, err := b.doer.Do(ctx, EndpointExternalGames, externalByUIDQuery(category, page))
		if err != nil {
			return nil, err
		}
		var records []ExternalGame
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, services.Wrap(services.ErrValidation, "catalog", "get external games", "decode response", err)
		}
		found := make(map[string]ExternalGame, len(records))
		for _, rec := range records {
			if rec.Game == 0 {
				continue
			}
			if existing, ok := found[rec.UID]; ok && existing.ID < rec.ID {
				continue
			}
			found[rec.UID] = rec
		}
		return found, nil
	})
}

// Search runs one title search through the retry path.
func (b *BatchClient) Search(ctx context.Context, title string, platforms []int64, limit int) ([]Game, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "search", "title must not be empty", nil)
	}
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	query := searchQuery(title, platforms, limit)
	var games []Game
	err := b.retry(ctx, "search", func(ctx context.Context) error {
		raw, err := b.doer.Do(ctx, EndpointGames, query)
		if err != nil {
			return err
		}
		var decoded []Game
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return services.Wrap(services.ErrValidation, "catalog", "search", "decode response", err)
		}
		games = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return games, nil
}

// runPages splits keys into pages and fetches them with bounded concurrency.
// Keys missing from a successful page report ErrNotFound; keys of a failed
// page report that page's error.
func runPages[K comparable, V any](ctx context.Context, b *BatchClient, keys []K, pageSize int, fetch func(context.Context, []K) (map[K]V, error)) map[K]Result[V] {
	keys = dedupe(keys)
	out := make(map[K]Result[V], len(keys))
	if len(keys) == 0 {
		return out
	}
	pages := chunk(keys, pageSize)
	results := make([]map[K]Result[V], len(pages))

	var g errgroup.Group
	g.SetLimit(b.opts.FanOut)
	for i, page := range pages {
		g.Go(func() error {
			results[i] = runPage(ctx, b, page, fetch)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		for k, v := range res {
			out[k] = v
		}
	}
	return out
}

func runPage[K comparable, V any](ctx context.Context, b *BatchClient, page []K, fetch func(context.Context, []K) (map[K]V, error)) map[K]Result[V] {
	out := make(map[K]Result[V], len(page))
	var found map[K]V
	err := b.retry(ctx, "page", func(ctx context.Context) error {
		values, err := fetch(ctx, page)
		if err != nil {
			return err
		}
		found = values
		return nil
	})
	if err != nil {
		b.metrics.BatchPage(services.Kind(err))
		for _, k := range page {
			out[k] = Result[V]{Err: err}
		}
		return out
	}
	b.metrics.BatchPage("ok")
	for _, k := range page {
		if v, ok := found[k]; ok {
			out[k] = Result[V]{Value: v}
			continue
		}
		out[k] = Result[V]{Err: services.Wrap(services.ErrNotFound, "catalog", "lookup", fmt.Sprintf("%v", k), nil)}
	}
	return out
}

// retry runs op with exponential backoff while it fails transiently. Other
// errors stop immediately.
func (b *BatchClient) retry(ctx context.Context, label string, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.opts.InitialBackoff
	policy.MaxInterval = b.opts.MaxBackoff
	policy.MaxElapsedTime = 0
	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !services.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Debug("catalog request retry scheduled",
			logging.String("operation", label),
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Error(err),
		)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(b.opts.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, bo, notify)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

func dedupe[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func chunk[K any](keys []K, size int) [][]K {
	return slices.Collect(slices.Chunk(keys, size))
}
