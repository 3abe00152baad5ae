package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/services"
)

var idListPattern = regexp.MustCompile(`where id = \(([^)]*)\)`)

// fakeDoer serves games by ID and counts pages.
type fakeDoer struct {
	mu       sync.Mutex
	games    map[int64]catalog.Game
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	failFor  func(call int32, body string) error
	bodies   []string
}

func (f *fakeDoer) Do(ctx context.Context, endpoint, body string) ([]byte, error) {
	call := f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()
	time.Sleep(time.Millisecond)
	if f.failFor != nil {
		if err := f.failFor(call, body); err != nil {
			return nil, err
		}
	}
	match := idListPattern.FindStringSubmatch(body)
	if match == nil {
		return []byte("[]"), nil
	}
	var out []catalog.Game
	for _, field := range strings.Split(match[1], ",") {
		id, _ := strconv.ParseInt(field, 10, 64)
		if g, ok := f.games[id]; ok {
			out = append(out, g)
		}
	}
	return json.Marshal(out)
}

func gamesUpTo(n int) map[int64]catalog.Game {
	games := make(map[int64]catalog.Game, n)
	for i := 1; i <= n; i++ {
		games[int64(i)] = catalog.Game{ID: int64(i), Name: fmt.Sprintf("Game %d", i)}
	}
	return games
}

func fastOptions(batch, fanOut int) catalog.BatchOptions {
	return catalog.BatchOptions{
		MaxBatchSize:   batch,
		FanOut:         fanOut,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestGetGamesPageCountCoversEveryKey(t *testing.T) {
	cases := []struct{ n, m, pages int }{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 7, 4},
		{1200, 500, 3},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("n=%d/m=%d", tc.n, tc.m), func(t *testing.T) {
			doer := &fakeDoer{games: gamesUpTo(tc.n)}
			client := catalog.NewBatchClient(doer, fastOptions(tc.m, 3))
			ids := make([]int64, 0, tc.n)
			for i := 1; i <= tc.n; i++ {
				ids = append(ids, int64(i))
			}
			results := client.GetGames(context.Background(), ids)
			if got := int(doer.calls.Load()); got != tc.pages {
				t.Fatalf("pages = %d, want %d", got, tc.pages)
			}
			if len(results) != tc.n {
				t.Fatalf("results = %d, want %d", len(results), tc.n)
			}
			for _, id := range ids {
				res, ok := results[id]
				if !ok || res.Err != nil || res.Value.ID != id {
					t.Fatalf("id %d: %+v", id, res)
				}
			}
		})
	}
}

func TestGetGamesCollapsesDuplicates(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(3)}
	client := catalog.NewBatchClient(doer, fastOptions(2, 1))
	results := client.GetGames(context.Background(), []int64{1, 2, 1, 3, 2})
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if doer.calls.Load() != 2 {
		t.Fatalf("pages = %d, want 2", doer.calls.Load())
	}
}

func TestGetGamesMissingIDIsNotFound(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(1)}
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	results := client.GetGames(context.Background(), []int64{1, 99})
	if results[1].Err != nil {
		t.Fatalf("id 1: %v", results[1].Err)
	}
	if !errors.Is(results[99].Err, services.ErrNotFound) {
		t.Fatalf("id 99: expected not found, got %v", results[99].Err)
	}
}

func TestGetGamesRetriesTransientPage(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(4)}
	doer.failFor = func(call int32, body string) error {
		if call <= 2 {
			return services.Wrap(services.ErrRateLimited, "test", "do", "", nil)
		}
		return nil
	}
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	results := client.GetGames(context.Background(), []int64{1, 2, 3, 4})
	for id, res := range results {
		if res.Err != nil {
			t.Fatalf("id %d: %v", id, res.Err)
		}
	}
	if doer.calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", doer.calls.Load())
	}
}

func TestGetGamesFailedPageDoesNotAbortSiblings(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(6)}
	doer.failFor = func(_ int32, body string) error {
		if strings.Contains(body, "(1,2)") {
			return services.Wrap(services.ErrTransient, "test", "do", "upstream down", nil)
		}
		return nil
	}
	client := catalog.NewBatchClient(doer, fastOptions(2, 3))
	results := client.GetGames(context.Background(), []int64{1, 2, 3, 4, 5, 6})
	for _, id := range []int64{1, 2} {
		if !errors.Is(results[id].Err, services.ErrTransient) {
			t.Fatalf("id %d: expected transient failure, got %v", id, results[id].Err)
		}
	}
	for _, id := range []int64{3, 4, 5, 6} {
		if results[id].Err != nil {
			t.Fatalf("id %d: %v", id, results[id].Err)
		}
	}
	// 1 initial + 3 retries for the failing page, 1 each for the other two.
	if got := doer.calls.Load(); got != 6 {
		t.Fatalf("calls = %d, want 6", got)
	}
}

func TestGetGamesFatalErrorIsNotRetried(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(2)}
	doer.failFor = func(int32, string) error {
		return services.Wrap(services.ErrAuth, "test", "do", "expired", nil)
	}
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	results := client.GetGames(context.Background(), []int64{1, 2})
	if !services.IsFatal(results[1].Err) || !services.IsFatal(results[2].Err) {
		t.Fatalf("expected fatal errors, got %+v", results)
	}
	if doer.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", doer.calls.Load())
	}
}

func TestGetGamesRespectsFanOut(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(40)}
	client := catalog.NewBatchClient(doer, fastOptions(2, 3))
	ids := make([]int64, 0, 40)
	for i := 1; i <= 40; i++ {
		ids = append(ids, int64(i))
	}
	client.GetGames(context.Background(), ids)
	if peak := doer.peak.Load(); peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestGetGamesCanceledNeverReportsSuccess(t *testing.T) {
	doer := &fakeDoer{games: gamesUpTo(10)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := catalog.NewBatchClient(doer, fastOptions(2, 2))
	results := client.GetGames(ctx, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	for id, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Fatalf("id %d: expected context.Canceled, got %v", id, res.Err)
		}
	}
	if doer.calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0", doer.calls.Load())
	}
}

func TestGetExternalGamesMapsUIDs(t *testing.T) {
	var body string
	doer := doerFunc(func(_ context.Context, endpoint, b string) ([]byte, error) {
		body = b
		if endpoint != catalog.EndpointExternalGames {
			t.Fatalf("endpoint = %q", endpoint)
		}
		return []byte(`[{"id":9,"game":220,"uid":"220","category":1},{"id":4,"game":221,"uid":"220","category":1},{"id":5,"game":400,"uid":"400","category":1}]`), nil
	})
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	results := client.GetExternalGames(context.Background(), "steam", []string{"220", "400", "999"})
	if !strings.Contains(body, "category = 1") || !strings.Contains(body, `"220"`) {
		t.Fatalf("unexpected query %q", body)
	}
	if results["220"].Value.Game != 221 {
		t.Fatalf("uid 220 mapped to %d, want lowest record id game 221", results["220"].Value.Game)
	}
	if results["400"].Value.Game != 400 {
		t.Fatalf("uid 400: %+v", results["400"])
	}
	if !errors.Is(results["999"].Err, services.ErrNotFound) {
		t.Fatalf("uid 999: %v", results["999"].Err)
	}
}

func TestGetExternalGamesPagesLeaveRoomForDuplicates(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	doer := doerFunc(func(_ context.Context, _ string, b string) ([]byte, error) {
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		return []byte("[]"), nil
	})
	uids := make([]string, 600)
	for i := range uids {
		uids[i] = strconv.Itoa(i + 1)
	}
	client := catalog.NewBatchClient(doer, fastOptions(500, 2))
	client.GetExternalGames(context.Background(), "steam", uids)

	if len(bodies) != 3 {
		t.Fatalf("pages = %d, want 3", len(bodies))
	}
	for _, body := range bodies {
		n := strings.Count(body, ",") + 1
		if n > 250 {
			t.Fatalf("page carries %d uids", n)
		}
		if !strings.Contains(body, "limit "+strconv.Itoa(2*n)+";") {
			t.Fatalf("page of %d uids lacks duplicate headroom: %q", n, body[len(body)-40:])
		}
	}
}

func TestGetExternalGamesUnsupportedStorefront(t *testing.T) {
	doer := &fakeDoer{}
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	results := client.GetExternalGames(context.Background(), "metacritic", []string{"a"})
	if !errors.Is(results["a"].Err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", results["a"].Err)
	}
	if doer.calls.Load() != 0 {
		t.Fatal("unsupported storefront should not hit the catalog")
	}
}

func TestSearchEscapesTitleAndFiltersPlatforms(t *testing.T) {
	var body string
	doer := doerFunc(func(_ context.Context, _ string, b string) ([]byte, error) {
		body = b
		return []byte(`[{"id":1,"name":"Doom"}]`), nil
	})
	client := catalog.NewBatchClient(doer, fastOptions(10, 1))
	games, err := client.Search(context.Background(), `Say "Hi"`, []int64{6, 13}, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("games = %d", len(games))
	}
	want := `search "Say \"Hi\""; fields *; where platforms = (6,13); limit 20;`
	if body != want {
		t.Fatalf("query = %q, want %q", body, want)
	}
}

func TestSearchEmptyTitle(t *testing.T) {
	client := catalog.NewBatchClient(&fakeDoer{}, fastOptions(10, 1))
	if _, err := client.Search(context.Background(), "  ", nil, 5); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type doerFunc func(ctx context.Context, endpoint, body string) ([]byte, error)

func (f doerFunc) Do(ctx context.Context, endpoint, body string) ([]byte, error) {
	return f(ctx, endpoint, body)
}
