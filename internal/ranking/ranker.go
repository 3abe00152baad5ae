package ranking

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
	"gamevault/internal/logging"
)

// Searcher issues a title search against the catalog.
type Searcher interface {
	Search(ctx context.Context, title string, platforms []int64, limit int) ([]catalog.Game, error)
}

// Hints carries the optional metadata a store entry offers.
type Hints struct {
	Year       int
	Platform   string
	Storefront documents.Storefront
}

// HintsFor extracts hints from a store entry.
func HintsFor(entry documents.StoreEntry) Hints {
	return Hints{Year: entry.ReleaseYear, Platform: entry.Platform, Storefront: entry.Storefront}
}

// Platforms returns the platform ids implied by the hints.
func (h Hints) Platforms() []int64 {
	out := append(catalog.HintPlatforms(h.Platform), catalog.StorefrontPlatforms(string(h.Storefront))...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Options weights the score components.
type Options struct {
	SimilarityWeight float64
	YearWeight       float64
	PlatformWeight   float64
	YearTolerance    int
	SearchLimit      int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		SimilarityWeight: 0.8,
		YearWeight:       0.1,
		PlatformWeight:   0.1,
		YearTolerance:    1,
		SearchLimit:      20,
	}
}

var searchPlatforms = []int64{catalog.PlatformPC, catalog.PlatformDOS}

// Ranker searches the catalog and orders candidates.
type Ranker struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

// New builds a ranker. Non-positive weights fall back to defaults as a set.
func New(searcher Searcher, opts Options, logger *slog.Logger) *Ranker {
	def := DefaultOptions()
	if opts.SimilarityWeight <= 0 {
		opts.SimilarityWeight = def.SimilarityWeight
		opts.YearWeight = def.YearWeight
		opts.PlatformWeight = def.PlatformWeight
	}
	opts.YearWeight = max(opts.YearWeight, 0)
	opts.PlatformWeight = max(opts.PlatformWeight, 0)
	if opts.YearTolerance < 0 {
		opts.YearTolerance = 0
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = def.SearchLimit
	}
	return &Ranker{
		searcher: searcher,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "ranking"),
	}
}

// Search returns scored candidates for title, best first. forced digests are
// scored alongside the catalog results and replace a fetched record with
// the same ID. An empty catalog response yields an empty slice.
func (r *Ranker) Search(ctx context.Context, title string, hints Hints, forced ...documents.GameDigest) ([]documents.Candidate, error) {
	byID := make(map[int64]documents.GameDigest)
	if strings.TrimSpace(title) != "" {
		platforms := hints.Platforms()
		if len(platforms) == 0 {
			platforms = searchPlatforms
		}
		games, err := r.searcher.Search(ctx, title, platforms, r.opts.SearchLimit)
		if err != nil {
			return nil, err
		}
		for _, g := range games {
			byID[g.ID] = documents.DigestFromGame(g)
		}
	}
	for _, d := range forced {
		byID[d.ID] = d
	}

	candidates := make([]documents.Candidate, 0, len(byID))
	for _, d := range byID {
		if d.Deleted {
			continue
		}
		candidates = append(candidates, documents.Candidate{Digest: d, Score: r.Score(title, d, hints)})
	}
	Sort(candidates)
	r.logger.Debug("ranked catalog candidates",
		logging.String("title", title),
		logging.Int("candidates", len(candidates)),
		logging.Int("forced", len(forced)),
	)
	return candidates, nil
}

// Score rates one digest against the query and hints.
func (r *Ranker) Score(title string, d documents.GameDigest, hints Hints) float64 {
	total := r.opts.SimilarityWeight * Similarity(title, d.Name)
	weight := r.opts.SimilarityWeight

	if hints.Year > 0 && r.opts.YearWeight > 0 {
		weight += r.opts.YearWeight
		if year := d.ReleaseYear(); year > 0 && abs(year-hints.Year) <= r.opts.YearTolerance {
			total += r.opts.YearWeight
		}
	}
	if platforms := hints.Platforms(); len(platforms) > 0 && r.opts.PlatformWeight > 0 {
		weight += r.opts.PlatformWeight
		if overlaps(platforms, d.Platforms) {
			total += r.opts.PlatformWeight
		}
	}
	if weight == 0 {
		return 0
	}
	return min(max(total/weight, 0), 1)
}

// Sort orders candidates by score descending, popularity descending, then
// catalog ID ascending.
func Sort(candidates []documents.Candidate) {
	slices.SortFunc(candidates, compare)
}

func compare(a, b documents.Candidate) int {
	return cmp.Or(
		cmp.Compare(b.Score, a.Score),
		cmp.Compare(b.Digest.Popularity(), a.Digest.Popularity()),
		cmp.Compare(a.Digest.ID, b.Digest.ID),
	)
}

func overlaps(a, b []int64) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
