package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/library"
	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/ranking"
	"gamevault/internal/services"
)

var (
	// ErrStale marks a catalog update older than the stored digest.
	ErrStale = errors.New("stale catalog update")
	// ErrSuperseded marks an attempt whose entry was approved, unmatched,
	// removed or re-ingested while the attempt ran. Nothing is written.
	ErrSuperseded = fmt.Errorf("entry changed during resolution: %w", services.ErrTransient)
)

// GameFetcher performs exact catalog lookups.
type GameFetcher interface {
	GetGames(ctx context.Context, ids []int64) map[int64]catalog.GameResult
	GetExternalGames(ctx context.Context, storefront string, uids []string) map[string]catalog.ExternalResult
}

// CandidateSearcher ranks catalog records for a title.
type CandidateSearcher interface {
	Search(ctx context.Context, title string, hints ranking.Hints, forced ...documents.GameDigest) ([]documents.Candidate, error)
}

// Resolver owns resolution attempts and their persistence.
type Resolver struct {
	fetcher    GameFetcher
	ranker     CandidateSearcher
	repo       *library.Repository
	thresholds Thresholds
	sink       events.Sink
	metrics    *metrics.Metrics
	logger     *slog.Logger

	games   library.KeyedMutex
	digests library.KeyedMutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSink sets the event sink.
func WithSink(sink events.Sink) Option {
	return func(r *Resolver) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithMetrics records outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "resolver")
		}
	}
}

// New builds a resolver.
func New(fetcher GameFetcher, ranker CandidateSearcher, repo *library.Repository, thresholds Thresholds, opts ...Option) (*Resolver, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || ranker == nil || repo == nil {
		return nil, services.Wrap(services.ErrConfiguration, "resolver", "new", "fetcher, ranker and repository are required", nil)
	}
	r := &Resolver{
		fetcher:    fetcher,
		ranker:     ranker,
		repo:       repo,
		thresholds: thresholds,
		sink:       events.Nop{},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Thresholds returns the active thresholds.
func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// Attempt decides an outcome for entry without persisting it. forced
// digests join the candidate set and take precedence over fetched records
// with the same ID.
func (r *Resolver) Attempt(ctx context.Context, entry documents.StoreEntry, forced ...documents.GameDigest) (Outcome, error) {
	outcome, _, err := r.attempt(ctx, entry, forced)
	return outcome, err
}

func (r *Resolver) attempt(ctx context.Context, entry documents.StoreEntry, forced []documents.GameDigest) (Outcome, events.ResolveKind, error) {
	if entry.CatalogID > 0 {
		outcome, err := r.retrieve(ctx, entry.CatalogID, forced)
		return outcome, events.ResolveRetrieve, err
	}
	if entry.StoreID != "" {
		if _, ok := catalog.ExternalSource(string(entry.Storefront)); ok {
			res := r.fetcher.GetExternalGames(ctx, string(entry.Storefront), []string{entry.StoreID})[entry.StoreID]
			switch {
			case res.Err == nil:
				outcome, err := r.retrieve(ctx, res.Value.Game, forced)
				return outcome, events.ResolveRetrieve, err
			case !errors.Is(res.Err, services.ErrNotFound):
				return Outcome{}, events.ResolveRetrieve, res.Err
			}
		}
	}
	if entry.Title == "" && len(forced) == 0 {
		return documents.UnknownOutcome(), events.ResolveSearch, nil
	}
	candidates, err := r.ranker.Search(ctx, entry.Title, ranking.HintsFor(entry), forced...)
	if err != nil {
		return Outcome{}, events.ResolveSearch, err
	}
	return Decide(candidates, r.thresholds), events.ResolveSearch, nil
}

func (r *Resolver) retrieve(ctx context.Context, id int64, forced []documents.GameDigest) (Outcome, error) {
	for _, d := range forced {
		if d.ID == id {
			if d.Deleted {
				return documents.UnknownOutcome(), nil
			}
			return documents.ResolvedOutcome(d), nil
		}
	}
	res := r.fetcher.GetGames(ctx, []int64{id})[id]
	if res.Err != nil {
		if errors.Is(res.Err, services.ErrNotFound) {
			return documents.UnknownOutcome(), nil
		}
		return Outcome{}, res.Err
	}
	return documents.ResolvedOutcome(documents.DigestFromGame(res.Value)), nil
}

// Resolve runs an attempt for entry and stores the outcome in the user's
// library. On error the entry keeps its prior state, except for an error
// wrapping library.ErrRefsOutOfSync, which means the placement was stored
// but the reverse index lags. When the entry's placement changed while the
// attempt ran, Resolve returns ErrSuperseded.
func (r *Resolver) Resolve(ctx context.Context, userID string, entry documents.StoreEntry) (Outcome, error) {
	if err := entry.Validate(); err != nil {
		return Outcome{}, err
	}
	ctx = services.WithUserID(ctx, userID)
	source := sourceOf(ctx)

	lib, err := r.repo.Library(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	before := lib.Locate(entry.Key())

	outcome, kind, err := r.attempt(ctx, entry, nil)
	if err != nil {
		r.metrics.ResolveOutcome("error", source)
		events.Emit(ctx, r.sink, events.ResolveEvent{
			Kind: kind, UserID: userID, EntryKey: entry.Key(), Source: source, Error: err.Error(),
		})
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "resolution attempt failed", "resolve_failed",
			logging.EntryKey(entry.Key()),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
		)
		return Outcome{}, err
	}

	var prior documents.Placement
	_, err = r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		if lib.Locate(entry.Key()) != before {
			return ErrSuperseded
		}
		prior = lib.Place(entry, outcome, r.repo.Now())
		return nil
	})
	if errors.Is(err, ErrSuperseded) {
		r.logger.Info("resolution discarded",
			logging.Args(append(logging.DecisionAttrs("resolve", "superseded", "placement changed during attempt"),
				logging.String(logging.FieldUserID, userID),
				logging.EntryKey(entry.Key()),
				logging.String("was", before.State.String()),
			)...)...,
		)
		return Outcome{}, err
	}
	if err != nil {
		return Outcome{}, err
	}
	if d := outcome.Digest; d != nil {
		r.storeDigest(ctx, *d)
	}
	r.record(ctx, kind, userID, entry.Key(), prior.State, outcome)
	return outcome, nil
}

func (r *Resolver) record(ctx context.Context, kind events.ResolveKind, userID, key string, from documents.ResolutionState, outcome Outcome) {
	source := sourceOf(ctx)
	evt := events.ResolveEvent{
		Kind:     kind,
		UserID:   userID,
		EntryKey: key,
		Source:   source,
		From:     from,
		To:       outcome.State,
		GameID:   outcome.GameID(),
	}
	if n := len(outcome.Candidates); n > 0 {
		evt.Candidates = n
		evt.TopScore = outcome.Candidates[0].Score
	}
	events.Emit(ctx, r.sink, evt)
	r.metrics.ResolveOutcome(string(outcome.State), source)
	logging.WithContext(ctx, r.logger).Info("entry resolution recorded",
		logging.Args(append(logging.DecisionAttrs("resolve", outcome.State.String(), string(kind)),
			logging.EntryKey(key),
			logging.String("from", from.String()),
			logging.GameID(outcome.GameID()),
		)...)...,
	)
}

// storeDigest writes d unless a newer version is already stored.
func (r *Resolver) storeDigest(ctx context.Context, d documents.GameDigest) {
	unlock := r.digests.Lock(strconv.FormatInt(d.ID, 10))
	defer unlock()
	stored, err := r.repo.Digest(ctx, d.ID)
	if err == nil && stored.UpdatedAt > d.UpdatedAt {
		return
	}
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		r.logger.Warn("digest read failed", logging.GameID(d.ID), logging.Error(err))
		return
	}
	if err := r.repo.PutDigest(ctx, d); err != nil {
		r.logger.Warn("digest write failed", logging.GameID(d.ID), logging.Error(err))
	}
}

func sourceOf(ctx context.Context) string {
	if source, ok := services.SourceFromContext(ctx); ok {
		return source
	}
	return "ingest"
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "check catalog client_id and client_secret"
	case errors.Is(err, services.ErrRateLimited):
		return "lower catalog qps or wait for the quota to reset"
	case services.IsTransient(err):
		return "catalog unavailable; the entry will be retried by reconcile"
	default:
		return "check logs for details"
	}
}
