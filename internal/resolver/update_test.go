package resolver_test

import (
	"context"
	"errors"
	"testing"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/resolver"
)

func resolveAll(t *testing.T, h *harness, user string, entries ...documents.StoreEntry) {
	t.Helper()
	for _, e := range entries {
		outcome, err := h.resolver.Resolve(context.Background(), user, e)
		if err != nil {
			t.Fatalf("Resolve %s: %v", e.Key(), err)
		}
		if outcome.State != documents.StateResolved {
			t.Fatalf("Resolve %s: state %s", e.Key(), outcome.State)
		}
	}
	h.recorder.Reset()
}

func TestApplyUpdateDropsStaleRecord(t *testing.T) {
	h := newHarness(t, pcGame(70, "Half-Life", 200))
	entry := documents.StoreEntry{ID: "hl", Title: "Half-Life", Storefront: documents.StorefrontGOG}
	resolveAll(t, h, "u1", entry)
	before := h.library(t, "u1")

	diff, err := h.resolver.ApplyUpdate(context.Background(), pcGame(70, "Renamed", 100))
	if !errors.Is(err, resolver.ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if !diff.Empty() {
		t.Fatalf("stale diff = %s", diff)
	}
	if d, _ := h.repo.Digest(context.Background(), 70); d.Name != "Half-Life" {
		t.Fatalf("stored digest overwritten: %+v", d)
	}
	if after := h.library(t, "u1"); after.Version != before.Version {
		t.Fatalf("library changed on stale update")
	}
	diffs := events.Of[events.DiffEvent](h.recorder)
	if len(diffs) != 1 || !diffs[0].Stale {
		t.Fatalf("diff events = %+v", diffs)
	}
}

func TestApplyUpdateIdentityChangeReresolves(t *testing.T) {
	h := newHarness(t, pcGame(70, "Half-Life", 100))
	byTitle := documents.StoreEntry{ID: "hl", Title: "Half-Life", Storefront: documents.StorefrontGOG}
	byID := documents.StoreEntry{ID: "x", Title: "Half-Life", Storefront: documents.StorefrontLibrary, CatalogID: 70}
	resolveAll(t, h, "u1", byTitle)
	resolveAll(t, h, "u2", byID)

	diff, err := h.resolver.ApplyUpdate(context.Background(), pcGame(70, "Completely Different Name", 200))
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if !diff.Name || !diff.NeedsResolve() {
		t.Fatalf("diff = %s", diff)
	}

	lib1 := h.library(t, "u1")
	if got := lib1.Locate(byTitle.Key()); got.State != documents.StateNeedsApproval {
		t.Fatalf("title entry placement = %+v, want needs_approval", got)
	}
	lib2 := h.library(t, "u2")
	resolved, ok := lib2.Resolved(byID.Key())
	if !ok || resolved.Digest.Name != "Completely Different Name" {
		t.Fatalf("id entry = %+v %v", resolved, ok)
	}
	refs, err := h.repo.Refs(context.Background(), 70)
	if err != nil || len(refs) != 1 || refs[0].UserID != "u2" {
		t.Fatalf("refs = %+v, %v", refs, err)
	}
	if d, _ := h.repo.Digest(context.Background(), 70); d.UpdatedAt != 200 {
		t.Fatalf("digest not stored: %+v", d)
	}
	diffs := events.Of[events.DiffEvent](h.recorder)
	if len(diffs) != 1 || diffs[0].Reresolved != 2 {
		t.Fatalf("diff events = %+v", diffs)
	}
}

func TestApplyUpdateCosmeticChangeRefreshesSnapshots(t *testing.T) {
	h := newHarness(t, pcGame(70, "Half-Life", 100))
	entry := documents.StoreEntry{ID: "hl", Title: "Half-Life", Storefront: documents.StorefrontGOG}
	resolveAll(t, h, "u1", entry)
	searches := h.catalog.searches

	updated := pcGame(70, "Half-Life", 200)
	updated.Rating = 96
	diff, err := h.resolver.ApplyUpdate(context.Background(), updated)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if diff.NeedsResolve() || !diff.Rating {
		t.Fatalf("diff = %s", diff)
	}
	if h.catalog.searches != searches {
		t.Fatalf("cosmetic update searched the catalog")
	}
	lib := h.library(t, "u1")
	resolved, ok := lib.Resolved(entry.Key())
	if !ok || resolved.Digest.Rating != 96 {
		t.Fatalf("snapshot = %+v %v", resolved.Digest, ok)
	}
	diffs := events.Of[events.DiffEvent](h.recorder)
	if len(diffs) != 1 || diffs[0].Refreshed != 1 {
		t.Fatalf("diff events = %+v", diffs)
	}
}

func TestApplyUpdateFailureLeavesDigestForRetry(t *testing.T) {
	h := newHarness(t, pcGame(70, "Half-Life", 100))
	entry := documents.StoreEntry{ID: "hl", Title: "Half-Life", Storefront: documents.StorefrontGOG}
	resolveAll(t, h, "u1", entry)

	h.catalog.setErr(errors.New("catalog down"))
	if _, err := h.resolver.ApplyUpdate(context.Background(), pcGame(70, "Other", 200)); err == nil {
		t.Fatal("expected error")
	}
	if d, _ := h.repo.Digest(context.Background(), 70); d.UpdatedAt != 100 {
		t.Fatalf("digest stored despite failure: %+v", d)
	}

	h.catalog.setErr(nil)
	diff, err := h.resolver.ApplyUpdate(context.Background(), pcGame(70, "Other", 200))
	if err != nil || !diff.NeedsResolve() {
		t.Fatalf("retry = %s, %v", diff, err)
	}
}

func TestApplyUpdateUnknownGameStoresDigest(t *testing.T) {
	h := newHarness(t)
	if _, err := h.resolver.ApplyUpdate(context.Background(), catalog.Game{ID: 5, Name: "New", UpdatedAt: 10}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if d, err := h.repo.Digest(context.Background(), 5); err != nil || d.Name != "New" {
		t.Fatalf("digest = %+v, %v", d, err)
	}
}

func TestRetireReresolvesEntriesAwayFromDeletedGame(t *testing.T) {
	h := newHarness(t, pcGame(70, "Half-Life", 100))
	byTitle := documents.StoreEntry{ID: "hl", Title: "Half-Life", Storefront: documents.StorefrontGOG}
	byID := documents.StoreEntry{ID: "x", Title: "Half-Life", Storefront: documents.StorefrontLibrary, CatalogID: 70}
	resolveAll(t, h, "u1", byTitle, byID)

	if _, err := h.resolver.Retire(context.Background(), 70, 50); !errors.Is(err, resolver.ErrStale) {
		t.Fatalf("older delete err = %v, want ErrStale", err)
	}

	diff, err := h.resolver.Retire(context.Background(), 70, 150)
	if err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if !diff.Deleted || !diff.NeedsResolve() {
		t.Fatalf("diff = %s", diff)
	}
	lib := h.library(t, "u1")
	for _, key := range []string{byTitle.Key(), byID.Key()} {
		if got := lib.Locate(key); got.State != documents.StateUnknown {
			t.Fatalf("%s placement = %+v, want unknown", key, got)
		}
	}
	if refs, _ := h.repo.Refs(context.Background(), 70); len(refs) != 0 {
		t.Fatalf("refs = %+v", refs)
	}
	d, err := h.repo.Digest(context.Background(), 70)
	if err != nil || !d.Deleted || d.UpdatedAt != 150 || d.Name != "Half-Life" {
		t.Fatalf("digest = %+v, %v", d, err)
	}
}
