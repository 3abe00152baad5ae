package library_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gamevault/internal/docstore"
	"gamevault/internal/documents"
	"gamevault/internal/library"
)

func newRepo(t *testing.T) *library.Repository {
	t.Helper()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return library.New(docstore.NewMemory(), library.WithClock(func() time.Time { return fixed }))
}

func entry(id string) documents.StoreEntry {
	return documents.StoreEntry{ID: id, Title: "Game " + id, Storefront: documents.StorefrontSteam}
}

func TestUpdateMaintainsReverseIndex(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Update(ctx, "alice", func(lib *documents.UserLibrary) error {
		lib.Place(entry("1"), documents.ResolvedOutcome(documents.GameDigest{ID: 100}), repo.Now())
		lib.Place(entry("2"), documents.ResolvedOutcome(documents.GameDigest{ID: 100}), repo.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	refs, err := repo.Refs(ctx, 100)
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	want := []documents.RefEntry{{UserID: "alice", EntryKey: "steam:1"}, {UserID: "alice", EntryKey: "steam:2"}}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}

	_, err = repo.Update(ctx, "alice", func(lib *documents.UserLibrary) error {
		lib.Place(entry("1"), documents.ResolvedOutcome(documents.GameDigest{ID: 200}), repo.Now())
		lib.Place(entry("2"), documents.UnknownOutcome(), repo.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if refs, _ := repo.Refs(ctx, 100); len(refs) != 0 {
		t.Fatalf("refs for 100 should be empty, got %v", refs)
	}
	refs, _ = repo.Refs(ctx, 200)
	if diff := cmp.Diff([]documents.RefEntry{{UserID: "alice", EntryKey: "steam:1"}}, refs); diff != "" {
		t.Fatalf("refs 200 mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := repo.Update(ctx, "bob", func(lib *documents.UserLibrary) error {
		lib.Place(entry("1"), documents.UnknownOutcome(), repo.Now())
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	lib, err := repo.Library(ctx, "bob")
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if lib.Len() != 0 || lib.Version != 0 {
		t.Fatalf("library should be untouched, got %+v", lib)
	}
	if users, _ := repo.Users(ctx); len(users) != 0 {
		t.Fatalf("users = %v, want none", users)
	}
}

// refsFailingStore rejects reverse-index writes while failRefs is set.
type refsFailingStore struct {
	docstore.Store
	mu       sync.Mutex
	failRefs bool
}

func (s *refsFailingStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefs = fail
}

func (s *refsFailingStore) Write(ctx context.Context, collection, id string, doc []byte) error {
	s.mu.Lock()
	fail := s.failRefs && collection == library.CollectionRefs
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Store.Write(ctx, collection, id, doc)
}

func TestUpdateReportsReverseIndexFailureAndRepairRestoresIt(t *testing.T) {
	store := &refsFailingStore{Store: docstore.NewMemory()}
	repo := library.New(store)
	ctx := context.Background()
	store.setFail(true)

	lib, err := repo.Update(ctx, "alice", func(lib *documents.UserLibrary) error {
		lib.Place(entry("1"), documents.ResolvedOutcome(documents.GameDigest{ID: 42}), repo.Now())
		lib.Place(entry("2"), documents.ResolvedOutcome(documents.GameDigest{ID: 42}), repo.Now())
		return nil
	})
	if !errors.Is(err, library.ErrRefsOutOfSync) {
		t.Fatalf("err = %v, want ErrRefsOutOfSync", err)
	}
	if len(lib.Entries) != 2 {
		t.Fatalf("written library = %+v", lib)
	}
	if refs, _ := repo.Refs(ctx, 42); len(refs) != 0 {
		t.Fatalf("refs = %+v, want none while writes fail", refs)
	}
	if users, _ := repo.Users(ctx); len(users) != 1 {
		t.Fatalf("users = %v, want alice indexed despite refs failure", users)
	}

	if _, err := repo.RepairRefs(ctx, "alice"); err == nil {
		t.Fatal("repair should fail while refs writes fail")
	}
	store.setFail(false)
	added, err := repo.RepairRefs(ctx, "alice")
	if err != nil || added != 2 {
		t.Fatalf("RepairRefs = %d, %v", added, err)
	}
	want := []documents.RefEntry{{UserID: "alice", EntryKey: "steam:1"}, {UserID: "alice", EntryKey: "steam:2"}}
	refs, err := repo.Refs(ctx, 42)
	if err != nil {
		t.Fatalf("Refs: %v", err)
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
	if added, err := repo.RepairRefs(ctx, "alice"); err != nil || added != 0 {
		t.Fatalf("second repair = %d, %v", added, err)
	}
}

func TestUpdateSerializesPerUser(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := entry(string(rune('a' + i)))
			if _, err := repo.Update(ctx, "carol", func(lib *documents.UserLibrary) error {
				lib.Place(e, documents.UnknownOutcome(), repo.Now())
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()
	lib, err := repo.Library(ctx, "carol")
	if err != nil {
		t.Fatalf("Library: %v", err)
	}
	if lib.Len() != 20 || lib.Version != 20 {
		t.Fatalf("lost update: len=%d version=%d", lib.Len(), lib.Version)
	}
	users, _ := repo.Users(ctx)
	if diff := cmp.Diff([]string{"carol"}, users); diff != "" {
		t.Fatalf("users mismatch (-want +got):\n%s", diff)
	}
}

func TestDigestsAndFailures(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	if err := repo.PutDigest(ctx, documents.GameDigest{ID: 7, Name: "Seven"}); err != nil {
		t.Fatalf("PutDigest: %v", err)
	}
	got, err := repo.Digests(ctx, []int64{7, 8})
	if err != nil {
		t.Fatalf("Digests: %v", err)
	}
	if len(got) != 1 || got[7].Name != "Seven" {
		t.Fatalf("Digests = %+v", got)
	}
	if _, err := repo.Digest(ctx, 8); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	for _, id := range []string{"0002", "0001"} {
		if err := repo.SaveFailure(ctx, documents.FailedEvent{ID: id, Method: "update", Kind: "transient"}); err != nil {
			t.Fatalf("SaveFailure: %v", err)
		}
	}
	failures, err := repo.Failures(ctx)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(failures) != 2 || failures[0].ID != "0001" {
		t.Fatalf("Failures = %+v", failures)
	}
	if err := repo.DeleteFailure(ctx, "0001"); err != nil {
		t.Fatalf("DeleteFailure: %v", err)
	}
	if failures, _ := repo.Failures(ctx); len(failures) != 1 {
		t.Fatalf("expected one failure left, got %d", len(failures))
	}
}

func TestKeyedMutexReleasesIdleKeys(t *testing.T) {
	var km library.KeyedMutex
	unlock := km.Lock("a")
	if km.Len() != 1 {
		t.Fatalf("Len = %d, want 1", km.Len())
	}
	unlock()
	unlock()
	if km.Len() != 0 {
		t.Fatalf("Len = %d, want 0", km.Len())
	}
}
