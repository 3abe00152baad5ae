package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"gamevault/internal/docstore"
	"gamevault/internal/documents"
	"gamevault/internal/logging"
	"gamevault/internal/services"
)

// Collection names.
const (
	CollectionGames     = "games"
	CollectionLibraries = "libraries"
	CollectionRefs      = "refs"
	CollectionIndex     = "index"
	CollectionFailures  = "webhook_failures"

	usersDocID = "users"
)

// ErrRefsOutOfSync reports that a library was written but its reverse index
// was not. RepairRefs restores the missing references.
var ErrRefsOutOfSync = fmt.Errorf("reverse index out of sync: %w", services.ErrTransient)

// Repository wraps a docstore with typed helpers.
type Repository struct {
	store  docstore.Store
	logger *slog.Logger
	now    func() time.Time

	users KeyedMutex
	refs  KeyedMutex
	index KeyedMutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logging.NewComponentLogger(logger, "library")
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a repository over store.
func New(store docstore.Store, opts ...Option) *Repository {
	r := &Repository{
		store:  store,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the repository clock.
func (r *Repository) Now() time.Time {
	return r.now()
}

// Digest returns the stored digest for id.
func (r *Repository) Digest(ctx context.Context, id int64) (documents.GameDigest, error) {
	return docstore.ReadJSON[documents.GameDigest](ctx, r.store, CollectionGames, gameKey(id))
}

// Digests returns stored digests for ids. Missing ids are omitted.
func (r *Repository) Digests(ctx context.Context, ids []int64) (map[int64]documents.GameDigest, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, gameKey(id))
	}
	raw, err := docstore.BatchReadJSON[documents.GameDigest](ctx, r.store, CollectionGames, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]documents.GameDigest, len(raw))
	for _, d := range raw {
		out[d.ID] = d
	}
	return out, nil
}

// PutDigest stores d under its catalog ID.
func (r *Repository) PutDigest(ctx context.Context, d documents.GameDigest) error {
	if d.ID <= 0 {
		return services.Wrap(services.ErrValidation, "library", "put digest", "digest id required", nil)
	}
	return docstore.WriteJSON(ctx, r.store, CollectionGames, gameKey(d.ID), d)
}

// Library returns the user's library, or an empty one when none exists.
func (r *Repository) Library(ctx context.Context, userID string) (documents.UserLibrary, error) {
	lib, err := docstore.ReadJSON[documents.UserLibrary](ctx, r.store, CollectionLibraries, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return documents.UserLibrary{UserID: userID}, nil
	}
	if err != nil {
		return documents.UserLibrary{}, err
	}
	return lib, nil
}

// Update runs fn against the user's library under the user's lock and
// writes the result. When fn fails nothing is written. The reverse index is
// updated for every entry whose resolved game changed; when that fails the
// written library is returned with an error wrapping ErrRefsOutOfSync.
func (r *Repository) Update(ctx context.Context, userID string, fn func(*documents.UserLibrary) error) (documents.UserLibrary, error) {
	if userID == "" {
		return documents.UserLibrary{}, services.Wrap(services.ErrValidation, "library", "update", "user id required", nil)
	}
	unlock := r.users.Lock(userID)
	defer unlock()

	lib, err := r.Library(ctx, userID)
	if err != nil {
		return documents.UserLibrary{}, err
	}
	isNew := lib.Version == 0
	before := resolvedMap(&lib)
	if err := fn(&lib); err != nil {
		return documents.UserLibrary{}, err
	}
	lib.UserID = userID
	lib.Version++
	lib.UpdatedAt = r.now().UTC()
	if err := docstore.WriteJSON(ctx, r.store, CollectionLibraries, userID, lib); err != nil {
		return documents.UserLibrary{}, err
	}
	var refsErr error
	if err := r.syncRefs(ctx, userID, before, resolvedMap(&lib)); err != nil {
		logging.WarnWithContext(r.logger, "reverse index update failed", "library_refs_failed",
			logging.String(logging.FieldUserID, userID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next reconcile pass repairs missing references"),
			logging.String(logging.FieldImpact, "catalog updates may miss this user's entries until then"),
		)
		refsErr = fmt.Errorf("%w: %w", ErrRefsOutOfSync, err)
	}
	if isNew {
		if err := r.addUser(ctx, userID); err != nil {
			return lib, errors.Join(err, refsErr)
		}
	}
	return lib, refsErr
}

// RepairRefs adds the reverse-index references missing for the user's
// resolved entries and returns how many were added. References left behind
// by entries that moved are not removed; ApplyUpdate skips them.
func (r *Repository) RepairRefs(ctx context.Context, userID string) (int, error) {
	unlock := r.users.Lock(userID)
	defer unlock()

	lib, err := r.Library(ctx, userID)
	if err != nil {
		return 0, err
	}
	byGame := make(map[int64][]string)
	for key, gameID := range resolvedMap(&lib) {
		byGame[gameID] = append(byGame[gameID], key)
	}
	if len(byGame) == 0 {
		return 0, nil
	}
	gameIDs := make([]int64, 0, len(byGame))
	docIDs := make([]string, 0, len(byGame))
	for id := range byGame {
		gameIDs = append(gameIDs, id)
		docIDs = append(docIDs, gameKey(id))
	}
	slices.Sort(gameIDs)
	stored, err := docstore.BatchReadJSON[documents.GameRefs](ctx, r.store, CollectionRefs, docIDs)
	if err != nil {
		return 0, err
	}

	var (
		added int
		errs  []error
	)
	for _, gameID := range gameIDs {
		have := stored[gameKey(gameID)].Entries
		var missing []refChange
		for _, key := range byGame[gameID] {
			if !slices.Contains(have, documents.RefEntry{UserID: userID, EntryKey: key}) {
				missing = append(missing, refChange{key: key, add: true})
			}
		}
		if len(missing) == 0 {
			continue
		}
		if err := r.applyRefChanges(ctx, userID, gameID, missing); err != nil {
			errs = append(errs, fmt.Errorf("refs %d: %w", gameID, err))
			continue
		}
		added += len(missing)
	}
	if added > 0 {
		r.logger.Info("reverse index repaired",
			logging.String(logging.FieldUserID, userID),
			logging.Int("added", added),
		)
	}
	return added, errors.Join(errs...)
}

// Refs returns the entries resolved to gameID.
func (r *Repository) Refs(ctx context.Context, gameID int64) ([]documents.RefEntry, error) {
	refs, err := docstore.ReadJSON[documents.GameRefs](ctx, r.store, CollectionRefs, gameKey(gameID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return refs.Entries, nil
}

// Users returns every user with a library.
func (r *Repository) Users(ctx context.Context) ([]string, error) {
	idx, err := docstore.ReadJSON[documents.UserIndex](ctx, r.store, CollectionIndex, usersDocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return idx.Users, nil
}

// SaveFailure stores or replaces a webhook failure.
func (r *Repository) SaveFailure(ctx context.Context, f documents.FailedEvent) error {
	if f.ID == "" {
		return services.Wrap(services.ErrValidation, "library", "save failure", "failure id required", nil)
	}
	return docstore.WriteJSON(ctx, r.store, CollectionFailures, f.ID, f)
}

// Failure returns one stored webhook failure.
func (r *Repository) Failure(ctx context.Context, id string) (documents.FailedEvent, error) {
	return docstore.ReadJSON[documents.FailedEvent](ctx, r.store, CollectionFailures, id)
}

// Failures returns every stored webhook failure ordered by ID.
func (r *Repository) Failures(ctx context.Context) ([]documents.FailedEvent, error) {
	ids, err := r.store.List(ctx, CollectionFailures)
	if err != nil {
		return nil, err
	}
	docs, err := docstore.BatchReadJSON[documents.FailedEvent](ctx, r.store, CollectionFailures, ids)
	if err != nil {
		return nil, err
	}
	out := make([]documents.FailedEvent, 0, len(docs))
	for _, id := range ids {
		if f, ok := docs[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// DeleteFailure drops a stored webhook failure.
func (r *Repository) DeleteFailure(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionFailures, id)
}

func (r *Repository) syncRefs(ctx context.Context, userID string, before, after map[string]int64) error {
	changes := make(map[int64][]refChange)
	for key, gameID := range before {
		if after[key] != gameID {
			changes[gameID] = append(changes[gameID], refChange{key: key, add: false})
		}
	}
	for key, gameID := range after {
		if before[key] != gameID {
			changes[gameID] = append(changes[gameID], refChange{key: key, add: true})
		}
	}
	gameIDs := make([]int64, 0, len(changes))
	for id := range changes {
		gameIDs = append(gameIDs, id)
	}
	slices.Sort(gameIDs)

	var errs []error
	for _, gameID := range gameIDs {
		if err := r.applyRefChanges(ctx, userID, gameID, changes[gameID]); err != nil {
			errs = append(errs, fmt.Errorf("refs %d: %w", gameID, err))
		}
	}
	return errors.Join(errs...)
}

type refChange struct {
	key string
	add bool
}

func (r *Repository) applyRefChanges(ctx context.Context, userID string, gameID int64, changes []refChange) error {
	id := gameKey(gameID)
	unlock := r.refs.Lock(id)
	defer unlock()

	refs, err := docstore.ReadJSON[documents.GameRefs](ctx, r.store, CollectionRefs, id)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	refs.GameID = gameID
	for _, change := range changes {
		ref := documents.RefEntry{UserID: userID, EntryKey: change.key}
		refs.Entries = slices.DeleteFunc(refs.Entries, func(e documents.RefEntry) bool { return e == ref })
		if change.add {
			refs.Entries = append(refs.Entries, ref)
		}
	}
	if len(refs.Entries) == 0 {
		return r.store.Delete(ctx, CollectionRefs, id)
	}
	slices.SortFunc(refs.Entries, func(a, b documents.RefEntry) int {
		return cmp.Or(strings.Compare(a.UserID, b.UserID), strings.Compare(a.EntryKey, b.EntryKey))
	})
	return docstore.WriteJSON(ctx, r.store, CollectionRefs, id, refs)
}

func (r *Repository) addUser(ctx context.Context, userID string) error {
	unlock := r.index.Lock(usersDocID)
	defer unlock()

	idx, err := docstore.ReadJSON[documents.UserIndex](ctx, r.store, CollectionIndex, usersDocID)
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	if slices.Contains(idx.Users, userID) {
		return nil
	}
	idx.Users = append(idx.Users, userID)
	slices.Sort(idx.Users)
	return docstore.WriteJSON(ctx, r.store, CollectionIndex, usersDocID, idx)
}

func resolvedMap(lib *documents.UserLibrary) map[string]int64 {
	out := make(map[string]int64, len(lib.Entries))
	for _, e := range lib.Entries {
		out[e.Entry.Key()] = e.Digest.ID
	}
	return out
}

func gameKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
