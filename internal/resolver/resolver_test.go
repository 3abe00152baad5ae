package resolver_test

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
	"gamevault/internal/ranking"
	"gamevault/internal/resolver"
	"gamevault/internal/services"
)

type fakeCatalog struct {
	mu       sync.Mutex
	games    map[int64]catalog.Game
	external map[string]int64
	err      error
	searches int
}

func newFakeCatalog(games ...catalog.Game) *fakeCatalog {
	f := &fakeCatalog{games: make(map[int64]catalog.Game), external: make(map[string]int64)}
	for _, g := range games {
		f.games[g.ID] = g
	}
	return f
}

func (f *fakeCatalog) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeCatalog) GetGames(_ context.Context, ids []int64) map[int64]catalog.GameResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]catalog.GameResult, len(ids))
	for _, id := range ids {
		switch g, ok := f.games[id]; {
		case f.err != nil:
			out[id] = catalog.GameResult{Err: f.err}
		case ok:
			out[id] = catalog.GameResult{Value: g}
		default:
			out[id] = catalog.GameResult{Err: services.ErrNotFound}
		}
	}
	return out
}

func (f *fakeCatalog) GetExternalGames(_ context.Context, _ string, uids []string) map[string]catalog.ExternalResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]catalog.ExternalResult, len(uids))
	for _, uid := range uids {
		switch id, ok := f.external[uid]; {
		case f.err != nil:
			out[uid] = catalog.ExternalResult{Err: f.err}
		case ok:
			out[uid] = catalog.ExternalResult{Value: catalog.ExternalGame{UID: uid, Game: id}}
		default:
			out[uid] = catalog.ExternalResult{Err: services.ErrNotFound}
		}
	}
	return out
}

func (f *fakeCatalog) Search(_ context.Context, _ string, _ []int64, _ int) ([]catalog.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]catalog.Game, 0, len(f.games))
	for _, g := range f.games {
		out = append(out, g)
	}
	return out, nil
}

type harness struct {
	catalog  *fakeCatalog
	repo     *library.Repository
	recorder *events.Recorder
	resolver *resolver.Resolver

	// beforeSearch runs once ahead of the next title search.
	beforeSearch func()
}

// hookedSearcher lets a test change the library while a search is in flight.
type hookedSearcher struct {
	next resolver.CandidateSearcher
	h    *harness
}

func (s hookedSearcher) Search(ctx context.Context, title string, hints ranking.Hints, forced ...documents.GameDigest) ([]documents.Candidate, error) {
	if hook := s.h.beforeSearch; hook != nil {
		s.h.beforeSearch = nil
		hook()
	}
	return s.next.Search(ctx, title, hints, forced...)
}

func newHarness(t *testing.T, games ...catalog.Game) *harness {
	t.Helper()
	fc := newFakeCatalog(games...)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := library.New(docstore.NewMemory(), library.WithClock(func() time.Time { return now }))
	rec := &events.Recorder{}
	h := &harness{catalog: fc, repo: repo, recorder: rec}
	searcher := hookedSearcher{next: ranking.New(fc, ranking.DefaultOptions(), nil), h: h}
	r, err := resolver.New(fc, searcher, repo, resolver.DefaultThresholds(), resolver.WithSink(rec))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.resolver = r
	return h
}

func (h *harness) library(t *testing.T, user string) documents.UserLibrary {
	t.Helper()
	lib, err := h.repo.Library(context.Background(), user)
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	return lib
}

func pcGame(id int64, name string, updated int64) catalog.Game {
	return catalog.Game{ID: id, Name: name, Slug: name, Platforms: []int64{catalog.PlatformPC}, Follows: id, UpdatedAt: updated}
}

func TestResolveExactCatalogID(t *testing.T) {
	h := newHarness(t, pcGame(42, "Quake", 100))
	entry := documents.StoreEntry{ID: "a", Title: "whatever", Storefront: documents.StorefrontLibrary, CatalogID: 42}

	outcome, err := h.resolver.Resolve(context.Background(), "u1", entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.State != documents.StateResolved || outcome.GameID() != 42 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if h.catalog.searches != 0 {
		t.Fatalf("exact id should not search, got %d searches", h.catalog.searches)
	}
	lib := h.library(t, "u1")
	if got := lib.Locate(entry.Key()); got.State != documents.StateResolved || got.GameID != 42 {
		t.Fatalf("placement = %+v", got)
	}
	if d, err := h.repo.Digest(context.Background(), 42); err != nil || d.Name != "Quake" {
		t.Fatalf("stored digest = %+v, %v", d, err)
	}
	refs, err := h.repo.Refs(context.Background(), 42)
	if err != nil || len(refs) != 1 || refs[0].EntryKey != entry.Key() {
		t.Fatalf("refs = %+v, %v", refs, err)
	}
	evts := events.Of[events.ResolveEvent](h.recorder)
	if len(evts) != 1 || evts[0].Kind != events.ResolveRetrieve || evts[0].To != documents.StateResolved {
		t.Fatalf("events = %+v", evts)
	}
}

func TestResolveMissingCatalogIDIsUnknown(t *testing.T) {
	h := newHarness(t)
	entry := documents.StoreEntry{ID: "a", Title: "Gone", Storefront: documents.StorefrontLibrary, CatalogID: 7}

	outcome, err := h.resolver.Resolve(context.Background(), "u1", entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.State != documents.StateUnknown {
		t.Fatalf("state = %s, want unknown", outcome.State)
	}
	lib := h.library(t, "u1")
	if len(lib.Unresolved.Unknown) != 1 || len(lib.Entries) != 0 {
		t.Fatalf("library = %+v", lib)
	}
}

func TestResolveStorefrontIDThroughExternalRecords(t *testing.T) {
	h := newHarness(t, pcGame(9, "Portal", 1))
	h.catalog.external["400"] = 9
	entry := documents.StoreEntry{ID: "400", Title: "Portal", Storefront: documents.StorefrontSteam, StoreID: "400"}

	outcome, err := h.resolver.Resolve(context.Background(), "u1", entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.GameID() != 9 || h.catalog.searches != 0 {
		t.Fatalf("outcome = %+v searches = %d", outcome, h.catalog.searches)
	}
}

func TestResolveUnmappedStorefrontIDFallsBackToSearch(t *testing.T) {
	h := newHarness(t, pcGame(9, "Portal", 1))
	entry := documents.StoreEntry{ID: "400", Title: "Portal", Storefront: documents.StorefrontSteam, StoreID: "400"}

	outcome, err := h.resolver.Resolve(context.Background(), "u1", entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.GameID() != 9 || h.catalog.searches != 1 {
		t.Fatalf("outcome = %+v searches = %d", outcome, h.catalog.searches)
	}
}

func TestResolveAmbiguousTitleNeedsApproval(t *testing.T) {
	h := newHarness(t, pcGame(1, "Doom", 1), pcGame(2, "Doom", 1), pcGame(3, "Doom II", 1))
	entry := documents.StoreEntry{ID: "d", Title: "Doom", Storefront: documents.StorefrontGOG}

	outcome, err := h.resolver.Resolve(context.Background(), "u1", entry)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.State != documents.StateNeedsApproval {
		t.Fatalf("state = %s, want needs_approval", outcome.State)
	}
	if len(outcome.Candidates) != 3 || outcome.Candidates[0].Digest.ID != 2 {
		t.Fatalf("candidates = %+v", outcome.Candidates)
	}
	queued, state, ok := h.library(t, "u1").Unresolved.Find(entry.Key())
	if !ok || state != documents.StateNeedsApproval || len(queued.Candidates) != 3 {
		t.Fatalf("queued = %+v %s %v", queued, state, ok)
	}
}

func TestResolveFatalErrorKeepsPriorState(t *testing.T) {
	h := newHarness(t, pcGame(42, "Quake", 100))
	entry := documents.StoreEntry{ID: "a", Title: "Quake", Storefront: documents.StorefrontLibrary, CatalogID: 42}
	if _, err := h.resolver.Resolve(context.Background(), "u1", entry); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	before := h.library(t, "u1")

	h.catalog.setErr(services.Wrap(services.ErrAuth, "catalog", "request", "token rejected", nil))
	if _, err := h.resolver.Resolve(context.Background(), "u1", entry); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	after := h.library(t, "u1")
	if after.Version != before.Version {
		t.Fatalf("library written on failure: version %d -> %d", before.Version, after.Version)
	}
	if got := after.Locate(entry.Key()); got.State != documents.StateResolved {
		t.Fatalf("placement = %+v", got)
	}
	evts := events.Of[events.ResolveEvent](h.recorder)
	if last := evts[len(evts)-1]; last.Error == "" {
		t.Fatalf("failure event missing error: %+v", last)
	}
}

func TestResolveRejectsInvalidEntry(t *testing.T) {
	h := newHarness(t)
	_, err := h.resolver.Resolve(context.Background(), "u1", documents.StoreEntry{ID: "x", Storefront: "nowhere", Title: "t"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAttemptDoesNotPersist(t *testing.T) {
	h := newHarness(t, pcGame(5, "Hades", 1))
	entry := documents.StoreEntry{ID: "h", Title: "Hades", Storefront: documents.StorefrontEGS}
	outcome, err := h.resolver.Attempt(context.Background(), entry)
	if err != nil || outcome.GameID() != 5 {
		t.Fatalf("Attempt = %+v, %v", outcome, err)
	}
	if lib := h.library(t, "u1"); lib.Len() != 0 {
		t.Fatalf("attempt persisted entries: %+v", lib)
	}
	if n := len(h.recorder.Envelopes()); n != 0 {
		t.Fatalf("attempt emitted %d events", n)
	}
}

func TestNewRejectsBadThresholds(t *testing.T) {
	fc := newFakeCatalog()
	repo := library.New(docstore.NewMemory())
	_, err := resolver.New(fc, ranking.New(fc, ranking.DefaultOptions(), nil), repo, resolver.Thresholds{HighConfidence: 1.5, CandidateCount: 1})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
