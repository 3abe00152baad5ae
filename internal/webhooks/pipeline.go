package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/resolver"
	"gamevault/internal/services"
)

// Updater applies a catalog record to stored state.
type Updater interface {
	ApplyUpdate(ctx context.Context, game catalog.Game) (documents.Diff, error)
	Retire(ctx context.Context, gameID, updatedAt int64) (documents.Diff, error)
}

// GameFetcher loads the full catalog record for an event.
type GameFetcher interface {
	GetGame(ctx context.Context, id int64) (catalog.Game, error)
}

// FailureStore keeps events that raised an exception.
type FailureStore interface {
	SaveFailure(ctx context.Context, f documents.FailedEvent) error
	Failure(ctx context.Context, id string) (documents.FailedEvent, error)
	Failures(ctx context.Context) ([]documents.FailedEvent, error)
	DeleteFailure(ctx context.Context, id string) error
}

// RejectionException is the exception stage's record of a failed event.
type RejectionException struct {
	Kind    string
	Message string
}

func (e *RejectionException) Error() string {
	return e.Kind + ": " + e.Message
}

// Result is the outcome of one event.
type Result struct {
	Sequence  uint64
	GameID    int64
	Stage     events.Stage
	Prefilter PrefilterRejectionReason
	Rejection RejectionReason
	Exception *RejectionException
	Stale     bool
	Diff      documents.Diff
}

// Applied reports whether the event reached the resolver and changed state.
func (r Result) Applied() bool {
	return r.Stage == "" && !r.Stale
}

// Stats counts stage invocations and their outcomes.
type Stats struct {
	Received          uint64 `json:"received"`
	Prefiltered       uint64 `json:"prefiltered"`
	Filtered          uint64 `json:"filtered"`
	ExceptionStage    uint64 `json:"exception_stage"`
	PrefilterRejected uint64 `json:"prefilter_rejected"`
	FilterRejected    uint64 `json:"filter_rejected"`
	Exceptions        uint64 `json:"exceptions"`
	Stale             uint64 `json:"stale"`
	Applied           uint64 `json:"applied"`
}

type counters struct {
	received, prefiltered, filtered, exceptionStage atomic.Uint64
	prefilterRejected, filterRejected, exceptions   atomic.Uint64
	stale, applied                                  atomic.Uint64
}

// Pipeline runs events through the stages.
type Pipeline struct {
	rules    Rules
	updater  Updater
	fetcher  GameFetcher
	failures FailureStore
	sink     events.Sink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	stats    counters
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFetcher refetches the full record before applying it.
func WithFetcher(f GameFetcher) PipelineOption {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithSink sets the event sink.
func WithSink(sink events.Sink) PipelineOption {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithMetrics records stage outcomes.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "webhooks")
		}
	}
}

// WithClock overrides the time source for the release checks.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline builds a pipeline that applies accepted events through
// updater and stores exceptions in failures.
func NewPipeline(rules Rules, updater Updater, failures FailureStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rules:    rules,
		updater:  updater,
		failures: failures,
		sink:     events.Nop{},
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:          p.stats.received.Load(),
		Prefiltered:       p.stats.prefiltered.Load(),
		Filtered:          p.stats.filtered.Load(),
		ExceptionStage:    p.stats.exceptionStage.Load(),
		PrefilterRejected: p.stats.prefilterRejected.Load(),
		FilterRejected:    p.stats.filterRejected.Load(),
		Exceptions:        p.stats.exceptions.Load(),
		Stale:             p.stats.stale.Load(),
		Applied:           p.stats.applied.Load(),
	}
}

// Handle runs evt through every stage, stopping at the first rejection.
func (p *Pipeline) Handle(ctx context.Context, evt Event) Result {
	p.stats.received.Add(1)
	res := Result{Sequence: evt.Sequence, GameID: evt.Game.ID}
	ctx = services.WithSource(ctx, "webhook")
	logger := p.logger.With(logging.GameID(evt.Game.ID), logging.String("method", string(evt.Method)))

	p.stats.prefiltered.Add(1)
	if reason, rejected := Prefilter(evt); rejected {
		p.stats.prefilterRejected.Add(1)
		res.Stage, res.Prefilter = events.StagePrefilter, reason
		p.reject(ctx, logger, evt, events.StagePrefilter, string(reason), "")
		if evt.Method == MethodDelete && evt.Game.ID > 0 {
			res.Diff = p.retire(ctx, logger, evt)
		}
		return res
	}

	p.stats.filtered.Add(1)
	if reason, rejected := p.rules.Filter(evt, p.now()); rejected {
		p.stats.filterRejected.Add(1)
		res.Stage, res.Rejection = events.StageFilter, reason
		p.reject(ctx, logger, evt, events.StageFilter, string(reason), "")
		return res
	}

	return p.process(ctx, logger, evt, res)
}

// process is the exception stage.
func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, evt Event, res Result) Result {
	p.stats.exceptionStage.Add(1)
	diff, err := p.apply(ctx, evt)
	switch {
	case errors.Is(err, resolver.ErrStale):
		p.stats.stale.Add(1)
		res.Stale = true
		p.metrics.WebhookEvent("applied", "stale")
		logger.Debug("stale webhook dropped")
		return res
	case err != nil:
		p.stats.exceptions.Add(1)
		exc := asException(err)
		res.Stage, res.Exception = events.StageException, exc
		p.reject(ctx, logger, evt, events.StageException, exc.Kind, exc.Message)
		p.saveFailure(ctx, logger, evt, exc)
		return res
	}
	p.stats.applied.Add(1)
	res.Diff = diff
	p.metrics.WebhookEvent("applied", "ok")
	logger.Debug("webhook applied", logging.String("diff", diff.String()))
	return res
}

// retire drops a deleted game from stored state. A delete carries no record
// worth filtering, so it bypasses the filter stage; failures are stored for
// retry like any exception.
func (p *Pipeline) retire(ctx context.Context, logger *slog.Logger, evt Event) documents.Diff {
	diff, err := p.apply(ctx, evt)
	switch {
	case err == nil:
		p.metrics.WebhookEvent("retired", "ok")
		logger.Debug("deleted game retired", logging.String("diff", diff.String()))
		return diff
	case errors.Is(err, resolver.ErrStale):
		p.stats.stale.Add(1)
		p.metrics.WebhookEvent("retired", "stale")
		return documents.Diff{}
	}
	exc := asException(err)
	p.stats.exceptions.Add(1)
	p.reject(ctx, logger, evt, events.StageException, exc.Kind, exc.Message)
	p.saveFailure(ctx, logger, evt, exc)
	return documents.Diff{}
}

func (p *Pipeline) apply(ctx context.Context, evt Event) (diff documents.Diff, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &RejectionException{Kind: "panic", Message: fmt.Sprintf("%v", rec)}
			p.logger.Error("webhook processing panicked",
				logging.GameID(evt.Game.ID),
				logging.String("panic", fmt.Sprintf("%v", rec)),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "webhook_panic"),
			)
		}
	}()
	if evt.Method == MethodDelete {
		return p.updater.Retire(ctx, evt.Game.ID, evt.Game.UpdatedAt)
	}
	game := evt.Game
	if p.fetcher != nil {
		game, err = p.fetcher.GetGame(ctx, evt.Game.ID)
		if err != nil {
			return documents.Diff{}, err
		}
	}
	return p.updater.ApplyUpdate(ctx, game)
}

func asException(err error) *RejectionException {
	var exc *RejectionException
	if errors.As(err, &exc) {
		return exc
	}
	return &RejectionException{Kind: services.Kind(err), Message: err.Error()}
}

func (p *Pipeline) reject(ctx context.Context, logger *slog.Logger, evt Event, stage events.Stage, reason, message string) {
	p.metrics.WebhookEvent(string(stage), reason)
	events.Emit(ctx, p.sink, events.RejectEvent{
		Stage:   stage,
		Reason:  reason,
		GameID:  evt.Game.ID,
		Method:  string(evt.Method),
		Message: message,
	})
	if stage == events.StageException {
		logging.WarnWithContext(logger, "webhook processing failed", "webhook_exception",
			logging.String("kind", reason),
			logging.String("message", message),
			logging.String(logging.FieldErrorHint, "stored for retry; run gamevault webhooks retry"),
		)
		return
	}
	logger.Debug("webhook rejected", logging.Args(logging.DecisionAttrs(string(stage), "rejected", reason)...)...)
}

func (p *Pipeline) saveFailure(ctx context.Context, logger *slog.Logger, evt Event, exc *RejectionException) {
	if p.failures == nil {
		return
	}
	// The event may have failed because ctx was cancelled; the record must
	// still land.
	ctx = context.WithoutCancel(ctx)
	now := p.now().UTC()
	id := failureID(evt.Game.ID)
	failed := documents.FailedEvent{
		ID:          id,
		Method:      string(evt.Method),
		Game:        evt.Game,
		FirstFailed: now,
	}
	if prior, err := p.failures.Failure(ctx, id); err == nil {
		failed.Attempts = prior.Attempts
		failed.FirstFailed = prior.FirstFailed
		if prior.Game.UpdatedAt > evt.Game.UpdatedAt {
			failed.Game = prior.Game
			failed.Method = prior.Method
		}
	}
	failed.Attempts++
	failed.Kind = exc.Kind
	failed.Message = exc.Message
	failed.LastFailed = now
	if err := p.failures.SaveFailure(ctx, failed); err != nil {
		logging.ErrorWithContext(logger, "failed to store webhook failure", "webhook_failure_store_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the catalog update is lost until the next webhook for this game"),
		)
	}
}

// failureID keys failures by game so repeated failures for one game
// collapse into a single record.
func failureID(gameID int64) string {
	return strconv.FormatInt(gameID, 10)
}

// RetryReport summarizes a RetryFailures pass.
type RetryReport struct {
	Attempted int `json:"attempted"`
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
}

// RetryFailures re-runs stored exceptions through the exception stage.
// Recovered events are removed from the store; stale ones are removed too
// since a newer update already landed.
func (p *Pipeline) RetryFailures(ctx context.Context) (RetryReport, error) {
	var report RetryReport
	if p.failures == nil {
		return report, nil
	}
	failed, err := p.failures.Failures(ctx)
	if err != nil {
		return report, err
	}
	for _, f := range failed {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		evt := Event{Method: Method(f.Method), Game: f.Game}
		logger := p.logger.With(logging.GameID(f.Game.ID), logging.String("method", f.Method), logging.Int("attempt", f.Attempts+1))
		res := p.process(services.WithSource(ctx, "webhook_retry"), logger, evt, Result{GameID: f.Game.ID})
		if res.Exception != nil {
			report.Failed++
			continue
		}
		report.Recovered++
		if err := p.failures.DeleteFailure(ctx, f.ID); err != nil {
			return report, err
		}
	}
	p.logger.Info("webhook retry pass complete",
		logging.Int("attempted", report.Attempted),
		logging.Int("recovered", report.Recovered),
		logging.Int("failed", report.Failed),
	)
	return report, nil
}
