package documents

import (
	"time"

	"gamevault/internal/catalog"
)

// GameDigest is a compact snapshot of a catalog record. UpdatedAt is the
// catalog's own version and orders competing updates.
type GameDigest struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Slug             string  `json:"slug,omitempty"`
	Category         int     `json:"category"`
	Status           int     `json:"status,omitempty"`
	ReleaseDate      int64   `json:"release_date,omitempty"`
	Platforms        []int64 `json:"platforms,omitempty"`
	ParentID         int64   `json:"parent_id,omitempty"`
	VersionParent    int64   `json:"version_parent,omitempty"`
	VersionTitle     string  `json:"version_title,omitempty"`
	Rating           float64 `json:"rating,omitempty"`
	AggregatedRating float64 `json:"aggregated_rating,omitempty"`
	Follows          int64   `json:"follows,omitempty"`
	Hypes            int64   `json:"hypes,omitempty"`
	Summary          string  `json:"summary,omitempty"`
	Cover            int64   `json:"cover,omitempty"`
	URL              string  `json:"url,omitempty"`
	UpdatedAt        int64   `json:"updated_at,omitempty"`
	Deleted          bool    `json:"deleted,omitempty"`
}

// DigestFromGame projects a catalog record.
func DigestFromGame(g catalog.Game) GameDigest {
	return GameDigest{
		ID:               g.ID,
		Name:             g.Name,
		Slug:             g.Slug,
		Category:         g.Category,
		Status:           g.Status,
		ReleaseDate:      g.FirstReleaseDate,
		Platforms:        append([]int64(nil), g.Platforms...),
		ParentID:         g.ParentGame,
		VersionParent:    g.VersionParent,
		VersionTitle:     g.VersionTitle,
		Rating:           g.Rating,
		AggregatedRating: g.AggregatedRating,
		Follows:          g.Follows,
		Hypes:            g.Hypes,
		Summary:          g.Summary,
		Cover:            g.Cover,
		URL:              g.URL,
		UpdatedAt:        g.UpdatedAt,
	}
}

// ReleaseYear returns the UTC release year or 0 when unknown.
func (d GameDigest) ReleaseYear() int {
	if d.ReleaseDate <= 0 {
		return 0
	}
	return time.Unix(d.ReleaseDate, 0).UTC().Year()
}

// Popularity is the ranking tie-breaker.
func (d GameDigest) Popularity() int64 {
	return d.Follows + d.Hypes
}

// Candidate is a scored ranking result.
type Candidate struct {
	Digest GameDigest `json:"digest"`
	Score  float64    `json:"score"`
}
