package documents

import (
	"slices"
	"strings"
)

// Diff is a field-level comparison of two digests for one catalog ID.
//
// Identity fields (name, slug, category, parent, version parent, release
// date, deleted) force re-resolution of every entry pointing at the ID. The
// rest only refresh stored snapshots.
type Diff struct {
	GameID int64 `json:"game_id"`

	Name          bool `json:"name,omitempty"`
	Slug          bool `json:"slug,omitempty"`
	Category      bool `json:"category,omitempty"`
	ParentGame    bool `json:"parent_game,omitempty"`
	VersionParent bool `json:"version_parent,omitempty"`
	ReleaseDate   bool `json:"release_date,omitempty"`
	Deleted       bool `json:"deleted,omitempty"`

	Status           bool `json:"status,omitempty"`
	Rating           bool `json:"rating,omitempty"`
	AggregatedRating bool `json:"aggregated_rating,omitempty"`
	Follows          bool `json:"follows,omitempty"`
	Hypes            bool `json:"hypes,omitempty"`
	Platforms        bool `json:"platforms,omitempty"`
	Summary          bool `json:"summary,omitempty"`
	Cover            bool `json:"cover,omitempty"`
	URL              bool `json:"url,omitempty"`
	VersionTitle     bool `json:"version_title,omitempty"`
}

// ComputeDiff compares a stored digest with an incoming one.
func ComputeDiff(old, next GameDigest) Diff {
	return Diff{
		GameID:           next.ID,
		Name:             old.Name != next.Name,
		Slug:             old.Slug != next.Slug,
		Category:         old.Category != next.Category,
		ParentGame:       old.ParentID != next.ParentID,
		VersionParent:    old.VersionParent != next.VersionParent,
		ReleaseDate:      old.ReleaseDate != next.ReleaseDate,
		Deleted:          old.Deleted != next.Deleted,
		Status:           old.Status != next.Status,
		Rating:           old.Rating != next.Rating,
		AggregatedRating: old.AggregatedRating != next.AggregatedRating,
		Follows:          old.Follows != next.Follows,
		Hypes:            old.Hypes != next.Hypes,
		Platforms:        !slices.Equal(sortedCopy(old.Platforms), sortedCopy(next.Platforms)),
		Summary:          old.Summary != next.Summary,
		Cover:            old.Cover != next.Cover,
		URL:              old.URL != next.URL,
		VersionTitle:     old.VersionTitle != next.VersionTitle,
	}
}

// NeedsResolve reports whether an identity field changed.
func (d Diff) NeedsResolve() bool {
	return d.Name || d.Slug || d.Category || d.ParentGame || d.VersionParent || d.ReleaseDate || d.Deleted
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Fields()) == 0
}

// Fields lists the changed fields, identity fields first.
func (d Diff) Fields() []string {
	flags := []struct {
		name string
		set  bool
	}{
		{"name", d.Name},
		{"slug", d.Slug},
		{"category", d.Category},
		{"parent_game", d.ParentGame},
		{"version_parent", d.VersionParent},
		{"release_date", d.ReleaseDate},
		{"deleted", d.Deleted},
		{"status", d.Status},
		{"rating", d.Rating},
		{"aggregated_rating", d.AggregatedRating},
		{"follows", d.Follows},
		{"hypes", d.Hypes},
		{"platforms", d.Platforms},
		{"summary", d.Summary},
		{"cover", d.Cover},
		{"url", d.URL},
		{"version_title", d.VersionTitle},
	}
	var out []string
	for _, f := range flags {
		if f.set {
			out = append(out, f.name)
		}
	}
	return out
}

func (d Diff) String() string {
	fields := d.Fields()
	if len(fields) == 0 {
		return "no changes"
	}
	return strings.Join(fields, ",")
}

func sortedCopy(values []int64) []int64 {
	out := slices.Clone(values)
	slices.Sort(out)
	return out
}
