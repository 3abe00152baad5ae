package documents_test

import (
	"testing"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
)

func TestDiffRatingOnlyIsCosmetic(t *testing.T) {
	old := documents.GameDigest{ID: 1, Name: "Doom", Rating: 80, Platforms: []int64{6, 13}}
	next := old
	next.Rating = 85
	next.Platforms = []int64{13, 6}

	d := documents.ComputeDiff(old, next)
	if d.Empty() {
		t.Fatal("rating change should produce a diff")
	}
	if d.NeedsResolve() {
		t.Fatal("rating change must not require re-resolution")
	}
	if d.String() != "rating" {
		t.Fatalf("String = %q, want rating", d.String())
	}
}

func TestDiffIdentityFieldsNeedResolve(t *testing.T) {
	base := documents.GameDigest{ID: 1, Name: "Doom", Slug: "doom", ReleaseDate: 100}
	mutations := map[string]func(*documents.GameDigest){
		"name":           func(d *documents.GameDigest) { d.Name = "DOOM (1993)" },
		"slug":           func(d *documents.GameDigest) { d.Slug = "doom-1993" },
		"category":       func(d *documents.GameDigest) { d.Category = catalog.CategoryRemake },
		"parent":         func(d *documents.GameDigest) { d.ParentID = 9 },
		"version_parent": func(d *documents.GameDigest) { d.VersionParent = 9 },
		"release":        func(d *documents.GameDigest) { d.ReleaseDate = 200 },
		"deleted":        func(d *documents.GameDigest) { d.Deleted = true },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			next := base
			mutate(&next)
			if !documents.ComputeDiff(base, next).NeedsResolve() {
				t.Fatalf("%s change should require re-resolution", name)
			}
		})
	}
}

func TestDiffIdenticalIsEmpty(t *testing.T) {
	d := documents.GameDigest{ID: 3, Name: "X", Platforms: []int64{6}}
	diff := documents.ComputeDiff(d, d)
	if !diff.Empty() || diff.String() != "no changes" {
		t.Fatalf("expected empty diff, got %s", diff)
	}
}

func TestDigestFromGame(t *testing.T) {
	g := catalog.Game{ID: 220, Name: "Half-Life 2", Follows: 10, Hypes: 5, FirstReleaseDate: 1100563200, ParentGame: 3}
	d := documents.DigestFromGame(g)
	if d.Popularity() != 15 || d.ReleaseYear() != 2004 || d.ParentID != 3 {
		t.Fatalf("unexpected digest %+v", d)
	}
}
