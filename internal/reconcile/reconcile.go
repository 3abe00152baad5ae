package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/resolver"
	"gamevault/internal/services"
)

// EntryResolver resolves and persists one entry.
type EntryResolver interface {
	Resolve(ctx context.Context, userID string, entry documents.StoreEntry) (documents.Outcome, error)
}

// LibrarySource reads libraries and the user index and repairs the reverse
// index.
type LibrarySource interface {
	Library(ctx context.Context, userID string) (documents.UserLibrary, error)
	Users(ctx context.Context) ([]string, error)
	RepairRefs(ctx context.Context, userID string) (int, error)
}

// Reconciler runs backlog passes.
type Reconciler struct {
	resolver    EntryResolver
	libraries   LibrarySource
	concurrency int
	sink        events.Sink
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSink sets the event sink.
func WithSink(sink events.Sink) Option {
	return func(r *Reconciler) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithMetrics records transitions and pass results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "reconcile")
		}
	}
}

// WithClock overrides the report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a reconciler resolving at most concurrency entries at once.
func New(resolver EntryResolver, libraries LibrarySource, concurrency int, opts ...Option) *Reconciler {
	r := &Reconciler{
		resolver:    resolver,
		libraries:   libraries,
		concurrency: max(concurrency, 1),
		sink:        events.Nop{},
		logger:      logging.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one pass over the user's backlog. On a fatal error or
// cancellation the partial report is returned with the error.
func (r *Reconciler) Run(ctx context.Context, userID string) (Report, error) {
	ctx = services.WithSource(services.WithUserID(ctx, userID), "reconcile")
	report := Report{UserID: userID, Started: r.now().UTC()}
	logger := logging.WithContext(ctx, r.logger)

	if _, err := r.libraries.RepairRefs(ctx, userID); err != nil {
		if errors.Is(err, context.Canceled) {
			report.Finished = r.now().UTC()
			r.finish(ctx, logger, report, err)
			return report, err
		}
		logging.WarnWithContext(logger, "reverse index repair failed", "reconcile_refs_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "catalog updates may miss some resolved entries"),
		)
	}

	lib, err := r.libraries.Library(ctx, userID)
	if err != nil {
		report.Finished = r.now().UTC()
		r.finish(ctx, logger, report, err)
		return report, err
	}
	backlog := lib.Unresolved.Snapshot()
	report.Total = len(backlog)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, queued := range backlog {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome, err := r.resolver.Resolve(gctx, userID, queued.Entry)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, resolver.ErrSuperseded) {
				report.Superseded++
				return nil
			}
			if err != nil {
				if services.IsFatal(err) || errors.Is(err, context.Canceled) {
					return err
				}
				report.Errors++
				logger.Debug("backlog entry failed",
					logging.EntryKey(queued.Entry.Key()),
					logging.String("error_kind", services.Kind(err)),
					logging.Error(err),
				)
				return nil
			}
			transition := report.record(queued.State, outcome.State)
			r.metrics.ReconcileTransition(transition, 1)
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	report.Cancelled = err != nil
	report.Finished = r.now().UTC()
	r.finish(ctx, logger, report, err)
	return report, err
}

func (r *Reconciler) finish(ctx context.Context, logger *slog.Logger, report Report, err error) {
	evt := events.ReconcileEvent{
		UserID:          report.UserID,
		Total:           report.Total,
		NewlyResolved:   report.NewlyResolved(),
		StillUnresolved: report.StillUnresolved(),
		Promoted:        report.Promoted(),
		Demoted:         report.Demoted(),
		Errors:          report.Errors,
		Cancelled:       report.Cancelled,
		Duration:        report.Duration(),
	}
	if err != nil {
		evt.Error = err.Error()
		r.metrics.ReconcilePass(services.Kind(err))
		logging.WarnWithContext(logger, "reconcile pass aborted", "reconcile_aborted",
			logging.Int("total", report.Total),
			logging.Int("newly_resolved", report.NewlyResolved()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, passHint(err)),
		)
	} else {
		r.metrics.ReconcilePass("ok")
		logger.Info("reconcile pass complete",
			logging.Int("total", report.Total),
			logging.Int("newly_resolved", report.NewlyResolved()),
			logging.Int("still_unresolved", report.StillUnresolved()),
			logging.Int("promoted", report.Promoted()),
			logging.Int("demoted", report.Demoted()),
			logging.Int("errors", report.Errors),
			logging.Duration("duration", report.Duration()),
		)
	}
	events.Emit(ctx, r.sink, evt)
}

func passHint(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "check catalog credentials; later passes will fail the same way"
	case errors.Is(err, context.Canceled):
		return "pass interrupted; the next scheduled pass picks up the backlog"
	default:
		return "check library store access"
	}
}
