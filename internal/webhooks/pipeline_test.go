package webhooks_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/docstore"
	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/library"
	"gamevault/internal/resolver"
	"gamevault/internal/services"
	"gamevault/internal/webhooks"
)

type fakeUpdater struct {
	mu      sync.Mutex
	err     error
	panic   bool
	applied []catalog.Game
	retired []int64
}

func (f *fakeUpdater) Retire(_ context.Context, gameID, _ int64) (documents.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return documents.Diff{}, f.err
	}
	f.retired = append(f.retired, gameID)
	return documents.Diff{GameID: gameID, Deleted: true}, nil
}

func (f *fakeUpdater) ApplyUpdate(_ context.Context, g catalog.Game) (documents.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return documents.Diff{}, f.err
	}
	f.applied = append(f.applied, g)
	return documents.Diff{GameID: g.ID, Name: true}, nil
}

func (f *fakeUpdater) set(err error, panics bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err, f.panic = err, panics
}

func (f *fakeUpdater) ids() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.applied))
	for i, g := range f.applied {
		out[i] = g.ID
	}
	return out
}

func newPipeline(t *testing.T, updater webhooks.Updater) (*webhooks.Pipeline, *library.Repository, *events.Recorder) {
	t.Helper()
	repo := library.New(docstore.NewMemory(), library.WithClock(func() time.Time { return now }))
	rec := &events.Recorder{}
	rules := webhooks.Rules{PopularityThreshold: 10000, EarlyAccessThreshold: 5000}
	p := webhooks.NewPipeline(rules, updater, repo,
		webhooks.WithSink(rec),
		webhooks.WithClock(func() time.Time { return now }),
	)
	return p, repo, rec
}

func TestPipelinePrefilterShortCircuits(t *testing.T) {
	updater := &fakeUpdater{}
	p, _, rec := newPipeline(t, updater)

	g := acceptable()
	g.Platforms = []int64{48}
	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodUpdate, Game: g})
	if res.Stage != events.StagePrefilter || res.Prefilter != webhooks.PrefilterNotPCGame {
		t.Fatalf("result = %+v", res)
	}
	stats := p.Stats()
	if stats.Prefiltered != 1 || stats.Filtered != 0 || stats.ExceptionStage != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(updater.ids()) != 0 {
		t.Fatal("prefiltered event reached the updater")
	}
	rejects := events.Of[events.RejectEvent](rec)
	if len(rejects) != 1 || rejects[0].Reason != "not_pc_game" {
		t.Fatalf("reject events = %+v", rejects)
	}
}

func TestPipelineDeleteRetiresGame(t *testing.T) {
	updater := &fakeUpdater{}
	p, _, rec := newPipeline(t, updater)

	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodDelete, Game: acceptable()})
	if res.Stage != events.StagePrefilter || res.Prefilter != webhooks.PrefilterDeleted {
		t.Fatalf("result = %+v", res)
	}
	if !res.Diff.Deleted {
		t.Fatalf("diff = %+v, want deleted", res.Diff)
	}
	stats := p.Stats()
	if stats.Filtered != 0 || stats.ExceptionStage != 0 {
		t.Fatalf("delete reached later stages: %+v", stats)
	}
	updater.mu.Lock()
	retired, applied := updater.retired, len(updater.applied)
	updater.mu.Unlock()
	if len(retired) != 1 || retired[0] != 10 || applied != 0 {
		t.Fatalf("retired = %v applied = %d", retired, applied)
	}
	if rejects := events.Of[events.RejectEvent](rec); len(rejects) != 1 || rejects[0].Reason != "deleted" {
		t.Fatalf("reject events = %+v", rejects)
	}
}

func TestPipelineFailedDeleteIsStoredAndRetried(t *testing.T) {
	updater := &fakeUpdater{}
	updater.set(services.Wrap(services.ErrTransient, "docstore", "write", "busy", nil), false)
	p, repo, _ := newPipeline(t, updater)
	ctx := context.Background()

	p.Handle(ctx, webhooks.Event{Method: webhooks.MethodDelete, Game: catalog.Game{ID: 10, Name: "Hollow Knight"}})
	failed, err := repo.Failure(ctx, "10")
	if err != nil || failed.Method != string(webhooks.MethodDelete) {
		t.Fatalf("failure = %+v, %v", failed, err)
	}

	updater.set(nil, false)
	report, err := p.RetryFailures(ctx)
	if err != nil || report.Recovered != 1 {
		t.Fatalf("retry = %+v, %v", report, err)
	}
	updater.mu.Lock()
	defer updater.mu.Unlock()
	if len(updater.retired) != 1 || len(updater.applied) != 0 {
		t.Fatalf("retired = %v applied = %v", updater.retired, updater.applied)
	}
}

func TestPipelineFilterShortCircuits(t *testing.T) {
	updater := &fakeUpdater{}
	p, _, _ := newPipeline(t, updater)

	g := acceptable()
	g.VersionTitle = ""
	g.AggregatedRating = 0
	g.Follows = 10
	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodUpdate, Game: g})
	if res.Stage != events.StageFilter || res.Rejection != webhooks.RejectNoScoreLowPopularity {
		t.Fatalf("result = %+v", res)
	}
	if stats := p.Stats(); stats.Filtered != 1 || stats.ExceptionStage != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPipelineAppliesAcceptedEvent(t *testing.T) {
	updater := &fakeUpdater{}
	p, _, _ := newPipeline(t, updater)

	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodUpdate, Game: acceptable()})
	if !res.Applied() || !res.Diff.Name {
		t.Fatalf("result = %+v", res)
	}
	if stats := p.Stats(); stats.Applied != 1 || stats.Received != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPipelineStaleIsNotAnException(t *testing.T) {
	updater := &fakeUpdater{err: resolver.ErrStale}
	p, repo, _ := newPipeline(t, updater)

	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodUpdate, Game: acceptable()})
	if !res.Stale || res.Exception != nil || res.Applied() {
		t.Fatalf("result = %+v", res)
	}
	if failures, _ := repo.Failures(context.Background()); len(failures) != 0 {
		t.Fatalf("stale event stored as failure: %+v", failures)
	}
}

func TestPipelineExceptionStoresFailureAndRetries(t *testing.T) {
	updater := &fakeUpdater{}
	updater.set(services.Wrap(services.ErrTransient, "catalog", "request", "503", nil), false)
	p, repo, rec := newPipeline(t, updater)
	ctx := context.Background()

	evt := webhooks.Event{Method: webhooks.MethodUpdate, Game: acceptable()}
	res := p.Handle(ctx, evt)
	if res.Exception == nil || res.Exception.Kind != "transient" {
		t.Fatalf("result = %+v", res)
	}
	p.Handle(ctx, evt)
	failures, err := repo.Failures(ctx)
	if err != nil || len(failures) != 1 {
		t.Fatalf("failures = %+v, %v", failures, err)
	}
	if failures[0].Attempts != 2 || failures[0].Game.ID != 10 {
		t.Fatalf("failure = %+v", failures[0])
	}
	if rejects := events.Of[events.RejectEvent](rec); len(rejects) != 2 || rejects[0].Stage != events.StageException {
		t.Fatalf("reject events = %+v", rejects)
	}

	report, err := p.RetryFailures(ctx)
	if err != nil || report.Attempted != 1 || report.Failed != 1 {
		t.Fatalf("retry while failing = %+v, %v", report, err)
	}
	if f, _ := repo.Failure(ctx, "10"); f.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", f.Attempts)
	}

	updater.set(nil, false)
	report, err = p.RetryFailures(ctx)
	if err != nil || report.Recovered != 1 {
		t.Fatalf("retry = %+v, %v", report, err)
	}
	if _, err := repo.Failure(ctx, "10"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("failure not deleted: %v", err)
	}
	if got := updater.ids(); len(got) != 1 || got[0] != 10 {
		t.Fatalf("applied = %v", got)
	}
}

// cancellingUpdater cancels the handling context mid-apply, the way
// Dispatcher.Stop does for an in-flight event.
type cancellingUpdater struct {
	cancel context.CancelFunc
}

func (u cancellingUpdater) ApplyUpdate(ctx context.Context, _ catalog.Game) (documents.Diff, error) {
	u.cancel()
	<-ctx.Done()
	return documents.Diff{}, ctx.Err()
}

func (u cancellingUpdater) Retire(_ context.Context, _, _ int64) (documents.Diff, error) {
	return documents.Diff{}, errors.New("unexpected retire")
}

func TestPipelineStoresFailureAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, repo, _ := newPipeline(t, cancellingUpdater{cancel: cancel})

	res := p.Handle(ctx, webhooks.Event{Method: webhooks.MethodUpdate, Game: acceptable()})
	if res.Exception == nil {
		t.Fatalf("result = %+v, want exception", res)
	}
	failed, err := repo.Failure(context.Background(), "10")
	if err != nil {
		t.Fatalf("failure not stored: %v", err)
	}
	if failed.Attempts != 1 || failed.Game.ID != 10 {
		t.Fatalf("failure = %+v", failed)
	}
}

func TestPipelineRecoversPanics(t *testing.T) {
	updater := &fakeUpdater{}
	updater.set(nil, true)
	p, repo, _ := newPipeline(t, updater)

	res := p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodCreate, Game: acceptable()})
	if res.Exception == nil || res.Exception.Kind != "panic" || res.Exception.Message != "boom" {
		t.Fatalf("result = %+v", res)
	}
	if failures, _ := repo.Failures(context.Background()); len(failures) != 1 || failures[0].Kind != "panic" {
		t.Fatalf("failures = %+v", failures)
	}
}

type fetcherFunc func(ctx context.Context, id int64) (catalog.Game, error)

func (f fetcherFunc) GetGame(ctx context.Context, id int64) (catalog.Game, error) { return f(ctx, id) }

func TestPipelineRefetchesFullRecord(t *testing.T) {
	updater := &fakeUpdater{}
	repo := library.New(docstore.NewMemory())
	full := acceptable()
	full.Summary = "full record"
	p := webhooks.NewPipeline(webhooks.Rules{}, updater, repo,
		webhooks.WithClock(func() time.Time { return now }),
		webhooks.WithFetcher(fetcherFunc(func(context.Context, int64) (catalog.Game, error) { return full, nil })),
	)
	p.Handle(context.Background(), webhooks.Event{Method: webhooks.MethodUpdate, Game: acceptable()})
	updater.mu.Lock()
	defer updater.mu.Unlock()
	if len(updater.applied) != 1 || updater.applied[0].Summary != "full record" {
		t.Fatalf("applied = %+v", updater.applied)
	}
}
