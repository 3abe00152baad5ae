package testsupport

import (
	"cmp"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"gamevault/internal/catalog"
	"gamevault/internal/ranking"
)

var (
	idClause     = regexp.MustCompile(`where id = \(([^)]*)\)`)
	uidClause    = regexp.MustCompile(`category = (\d+) & uid = \(([^)]*)\)`)
	searchClause = regexp.MustCompile(`^search "((?:[^"\\]|\\.)*)";`)
	platClause   = regexp.MustCompile(`where platforms = \(([^)]*)\)`)
	limitClause  = regexp.MustCompile(`limit (\d+);`)
)

// Hook is a webhook registration received by the fake catalog.
type Hook struct {
	URL    string
	Method string
	Secret string
}

// FakeCatalog serves the subset of the catalog API the connection uses.
type FakeCatalog struct {
	Server *httptest.Server

	mu       sync.Mutex
	games    map[int64]catalog.Game
	external map[string]catalog.ExternalGame
	hooks    []Hook
	status   int
	requests atomic.Int64
}

// NewFakeCatalog starts a fake catalog server and registers cleanup.
func NewFakeCatalog(t testing.TB) *FakeCatalog {
	t.Helper()

	f := &FakeCatalog{
		games:    make(map[int64]catalog.Game),
		external: make(map[string]catalog.ExternalGame),
	}
	r := chi.NewRouter()
	r.Post("/games", f.handleGames)
	r.Post("/external_games", f.handleExternal)
	r.Post("/games/webhooks", f.handleWebhook)
	f.Server = httptest.NewServer(f.authorize(r))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the API root to configure the connection with.
func (f *FakeCatalog) URL() string {
	return f.Server.URL
}

// AddGame stores or replaces a game record.
func (f *FakeCatalog) AddGame(games ...catalog.Game) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range games {
		f.games[g.ID] = g
	}
}

// AddExternal stores a storefront mapping.
func (f *FakeCatalog) AddExternal(ext catalog.ExternalGame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.external[externalKey(ext.Category, ext.UID)] = ext
}

// FailWith makes every request answer status. Zero restores normal service.
func (f *FakeCatalog) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Hooks returns the webhook registrations received so far.
func (f *FakeCatalog) Hooks() []Hook {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.hooks)
}

// Requests counts the requests served, including failures.
func (f *FakeCatalog) Requests() int64 {
	return f.requests.Load()
}

func (f *FakeCatalog) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if r.Header.Get("Client-ID") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeCatalog) handleGames(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []catalog.Game{}
	if m := idClause.FindStringSubmatch(query); m != nil {
		for _, id := range parseInts(m[1]) {
			if g, ok := f.games[id]; ok {
				out = append(out, g)
			}
		}
		writeBody(w, out)
		return
	}

	var title string
	if m := searchClause.FindStringSubmatch(query); m != nil {
		title = ranking.Normalize(strings.ReplaceAll(m[1], `\"`, `"`))
	}
	var platforms []int64
	if p := platClause.FindStringSubmatch(query); p != nil {
		platforms = parseInts(p[1])
	}
	for _, g := range f.games {
		if title != "" && !strings.Contains(ranking.Normalize(g.Name), title) {
			continue
		}
		if len(platforms) > 0 && !slices.ContainsFunc(g.Platforms, func(id int64) bool { return slices.Contains(platforms, id) }) {
			continue
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b catalog.Game) int { return cmp.Compare(a.ID, b.ID) })
	if l := limitClause.FindStringSubmatch(query); l != nil {
		if n, err := strconv.Atoi(l[1]); err == nil && len(out) > n {
			out = out[:n]
		}
	}
	writeBody(w, out)
}

func (f *FakeCatalog) handleExternal(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	m := uidClause.FindStringSubmatch(query)
	if m == nil {
		http.Error(w, "unsupported query", http.StatusBadRequest)
		return
	}
	category, _ := strconv.Atoi(m[1])

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []catalog.ExternalGame{}
	for _, raw := range strings.Split(m[2], ",") {
		uid := strings.Trim(strings.TrimSpace(raw), `"`)
		if ext, ok := f.external[externalKey(category, uid)]; ok {
			out = append(out, ext)
		}
	}
	writeBody(w, out)
}

func (f *FakeCatalog) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hook := Hook{URL: r.PostForm.Get("url"), Method: r.PostForm.Get("method"), Secret: r.PostForm.Get("secret")}
	f.mu.Lock()
	f.hooks = append(f.hooks, hook)
	id := len(f.hooks)
	f.mu.Unlock()
	writeBody(w, map[string]any{"id": id, "url": hook.URL, "active": true})
}

func readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return strings.TrimSpace(string(body)), true
}

func writeBody(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func parseInts(list string) []int64 {
	var out []int64
	for _, raw := range strings.Split(list, ",") {
		if v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func externalKey(category int, uid string) string {
	return strconv.Itoa(category) + ":" + uid
}
