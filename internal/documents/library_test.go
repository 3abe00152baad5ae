package documents_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gamevault/internal/documents"
)

func steamEntry(id, title string) documents.StoreEntry {
	return documents.StoreEntry{ID: id, Title: title, Storefront: documents.StorefrontSteam, StoreID: id}
}

func TestPlaceKeepsLocationsExclusive(t *testing.T) {
	var lib documents.UserLibrary
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := steamEntry("220", "Half-Life 2")
	cand := []documents.Candidate{{Digest: documents.GameDigest{ID: 220, Name: "Half-Life 2"}, Score: 0.7}}

	prior := lib.Place(entry, documents.ApprovalOutcome(cand), now)
	if prior.State != documents.StateNone {
		t.Fatalf("prior state = %v, want none", prior.State)
	}
	if lib.Locate(entry.Key()).State != documents.StateNeedsApproval {
		t.Fatalf("expected needs approval, got %+v", lib.Locate(entry.Key()))
	}

	prior = lib.Place(entry, documents.ResolvedOutcome(cand[0].Digest), now)
	if prior.State != documents.StateNeedsApproval {
		t.Fatalf("prior state = %v", prior.State)
	}
	if lib.Unresolved.Len() != 0 || len(lib.Entries) != 1 {
		t.Fatalf("entry in more than one place: %+v", lib)
	}
	if got := lib.Locate(entry.Key()); got.State != documents.StateResolved || got.GameID != 220 {
		t.Fatalf("unexpected placement %+v", got)
	}

	prior = lib.Place(entry, documents.UnknownOutcome(), now)
	if prior.State != documents.StateResolved || prior.GameID != 220 {
		t.Fatalf("prior = %+v", prior)
	}
	if len(lib.Entries) != 0 || len(lib.Unresolved.Unknown) != 1 || len(lib.Unresolved.NeedApproval) != 0 {
		t.Fatalf("unexpected library %+v", lib)
	}
}

func TestRemoveStorefront(t *testing.T) {
	var lib documents.UserLibrary
	now := time.Now()
	lib.Place(steamEntry("1", "A"), documents.ResolvedOutcome(documents.GameDigest{ID: 10}), now)
	lib.Place(steamEntry("2", "B"), documents.UnknownOutcome(), now)
	gog := documents.StoreEntry{ID: "g1", Title: "C", Storefront: documents.StorefrontGOG}
	lib.Place(gog, documents.UnknownOutcome(), now)

	removed := lib.RemoveStorefront(documents.StorefrontSteam)
	want := []documents.Placement{
		{Key: "steam:1", State: documents.StateResolved, GameID: 10},
		{Key: "steam:2", State: documents.StateUnknown},
	}
	if diff := cmp.Diff(want, removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
	if lib.Len() != 1 {
		t.Fatalf("Len = %d, want 1", lib.Len())
	}
	if _, ok := lib.Entry("gog:g1"); !ok {
		t.Fatal("gog entry should remain")
	}
}

func TestRefreshDigestOnlyTouchesMatchingID(t *testing.T) {
	var lib documents.UserLibrary
	now := time.Now()
	lib.Place(steamEntry("1", "A"), documents.ResolvedOutcome(documents.GameDigest{ID: 10, Rating: 50}), now)
	lib.Place(steamEntry("2", "B"), documents.ResolvedOutcome(documents.GameDigest{ID: 11, Rating: 50}), now)

	if n := lib.RefreshDigest(documents.GameDigest{ID: 10, Rating: 90}); n != 1 {
		t.Fatalf("refreshed %d, want 1", n)
	}
	a, _ := lib.Resolved("steam:1")
	b, _ := lib.Resolved("steam:2")
	if a.Digest.Rating != 90 || b.Digest.Rating != 50 {
		t.Fatalf("unexpected ratings %v %v", a.Digest.Rating, b.Digest.Rating)
	}
	if keys := lib.KeysResolvedTo(10); len(keys) != 1 || keys[0] != "steam:1" {
		t.Fatalf("KeysResolvedTo = %v", keys)
	}
}

func TestStoreEntryValidate(t *testing.T) {
	cases := []struct {
		name  string
		entry documents.StoreEntry
		ok    bool
	}{
		{"valid", steamEntry("220", "Half-Life 2"), true},
		{"catalog id only", documents.StoreEntry{ID: "x", Storefront: documents.StorefrontLibrary, CatalogID: 5}, true},
		{"missing id", documents.StoreEntry{Title: "A", Storefront: documents.StorefrontSteam}, false},
		{"bad storefront", documents.StoreEntry{ID: "1", Title: "A", Storefront: "itch"}, false},
		{"nothing to resolve", documents.StoreEntry{ID: "1", Storefront: documents.StorefrontGOG}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.entry.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestParseStorefrontAliases(t *testing.T) {
	sf, err := documents.ParseStorefront(" Epic ")
	if err != nil || sf != documents.StorefrontEGS {
		t.Fatalf("ParseStorefront = %q, %v", sf, err)
	}
	if sf, id, ok := documents.SplitKey("steam:220"); !ok || sf != documents.StorefrontSteam || id != "220" {
		t.Fatalf("SplitKey = %q %q %v", sf, id, ok)
	}
}
