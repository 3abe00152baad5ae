package resolver

import (
	"context"
	"errors"
	"strconv"

	"gamevault/internal/catalog"
	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/logging"
	"gamevault/internal/services"
)

// errUnchanged aborts a library update without writing.
var errUnchanged = errors.New("library unchanged")

// ApplyUpdate folds a catalog update into stored state. Updates for one game
// are serialized. An update older than the stored digest returns ErrStale
// and changes nothing. The new digest is stored only after every affected
// entry was handled, so a failed update can be retried in full.
func (r *Resolver) ApplyUpdate(ctx context.Context, game catalog.Game) (documents.Diff, error) {
	if game.ID <= 0 {
		return documents.Diff{}, services.Wrap(services.ErrValidation, "resolver", "apply update", "game id required", nil)
	}
	ctx = services.WithSource(ctx, "webhook")
	next := documents.DigestFromGame(game)
	unlock := r.games.Lock(strconv.FormatInt(next.ID, 10))
	defer unlock()

	stored, err := r.storedDigest(ctx, next.ID)
	if err != nil {
		return documents.Diff{}, err
	}
	if next.UpdatedAt < stored.UpdatedAt {
		return r.dropStale(ctx, stored, next.UpdatedAt)
	}
	return r.applyDigest(ctx, stored, next)
}

// Retire marks gameID as deleted or merged away in the catalog. Entries
// resolved to it are re-resolved without it. updatedAt orders the deletion
// against other updates; zero means the deletion carries no version.
func (r *Resolver) Retire(ctx context.Context, gameID, updatedAt int64) (documents.Diff, error) {
	if gameID <= 0 {
		return documents.Diff{}, services.Wrap(services.ErrValidation, "resolver", "retire", "game id required", nil)
	}
	ctx = services.WithSource(ctx, "webhook")
	unlock := r.games.Lock(strconv.FormatInt(gameID, 10))
	defer unlock()

	stored, err := r.storedDigest(ctx, gameID)
	if err != nil {
		return documents.Diff{}, err
	}
	if updatedAt > 0 && updatedAt < stored.UpdatedAt {
		return r.dropStale(ctx, stored, updatedAt)
	}
	next := stored
	next.Deleted = true
	next.UpdatedAt = max(stored.UpdatedAt, updatedAt)
	return r.applyDigest(ctx, stored, next)
}

func (r *Resolver) storedDigest(ctx context.Context, id int64) (documents.GameDigest, error) {
	stored, err := r.repo.Digest(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return documents.GameDigest{ID: id}, nil
	}
	return stored, err
}

func (r *Resolver) dropStale(ctx context.Context, stored documents.GameDigest, incoming int64) (documents.Diff, error) {
	events.Emit(ctx, r.sink, events.DiffEvent{GameID: stored.ID, Stale: true})
	r.logger.Info("catalog update dropped",
		logging.Args(append(logging.DecisionAttrs("catalog_update", "stale", "older than stored digest"),
			logging.GameID(stored.ID),
			logging.Int64("incoming_updated_at", incoming),
			logging.Int64("stored_updated_at", stored.UpdatedAt),
		)...)...,
	)
	return documents.Diff{GameID: stored.ID}, ErrStale
}

// applyDigest moves stored state from stored to next. The caller holds the
// game lock.
func (r *Resolver) applyDigest(ctx context.Context, stored, next documents.GameDigest) (documents.Diff, error) {
	diff := documents.ComputeDiff(stored, next)
	evt := events.DiffEvent{GameID: next.ID, Fields: diff.Fields(), NeedsResolve: diff.NeedsResolve()}
	if !diff.Empty() {
		refs, err := r.repo.Refs(ctx, next.ID)
		if err != nil {
			return diff, err
		}
		users := groupRefs(refs)
		if diff.NeedsResolve() {
			for _, u := range users {
				for _, key := range u.keys {
					changed, err := r.reresolve(ctx, u.userID, key, next)
					if err != nil {
						return diff, err
					}
					if changed {
						evt.Reresolved++
					}
				}
			}
		} else {
			for _, u := range users {
				n, err := r.refresh(ctx, u.userID, next)
				if err != nil {
					return diff, err
				}
				evt.Refreshed += n
			}
		}
	}

	if err := r.putDigest(ctx, next); err != nil {
		return diff, err
	}
	events.Emit(ctx, r.sink, evt)
	r.logger.Info("catalog update applied",
		logging.GameID(next.ID),
		logging.String("diff", diff.String()),
		logging.Bool("needs_resolve", evt.NeedsResolve),
		logging.Int("reresolved", evt.Reresolved),
		logging.Int("refreshed", evt.Refreshed),
	)
	return diff, nil
}

// reresolve re-runs one resolved entry with d forced into the candidates.
// It reports whether the entry was still resolved to d.ID.
func (r *Resolver) reresolve(ctx context.Context, userID, key string, d documents.GameDigest) (bool, error) {
	lib, err := r.repo.Library(ctx, userID)
	if err != nil {
		return false, err
	}
	current, ok := lib.Resolved(key)
	if !ok || current.Digest.ID != d.ID {
		return false, nil
	}
	ctx = services.WithUserID(ctx, userID)
	outcome, kind, err := r.attempt(ctx, current.Entry, []documents.GameDigest{d})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "re-resolution failed", "reresolve_failed",
			logging.EntryKey(key),
			logging.GameID(d.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, errorHint(err)),
			logging.String(logging.FieldImpact, "entry keeps its previous match until the update is retried"),
		)
		return false, err
	}
	_, err = r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		if p := lib.Locate(key); p.State != documents.StateResolved || p.GameID != d.ID {
			return errUnchanged
		}
		lib.Place(current.Entry, outcome, r.repo.Now())
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if outcome.Digest != nil && outcome.Digest.ID != d.ID {
		r.storeDigest(ctx, *outcome.Digest)
	}
	r.record(ctx, kind, userID, key, documents.StateResolved, outcome)
	return true, nil
}

func (r *Resolver) refresh(ctx context.Context, userID string, d documents.GameDigest) (int, error) {
	var n int
	_, err := r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		n = lib.RefreshDigest(d)
		if n == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	events.Emit(ctx, r.sink, events.ResolveEvent{
		Kind: events.ResolveDigest, UserID: userID, Source: sourceOf(ctx),
		From: documents.StateResolved, To: documents.StateResolved, GameID: d.ID,
	})
	return n, nil
}

func (r *Resolver) putDigest(ctx context.Context, d documents.GameDigest) error {
	unlock := r.digests.Lock(strconv.FormatInt(d.ID, 10))
	defer unlock()
	return r.repo.PutDigest(ctx, d)
}

type userRefs struct {
	userID string
	keys   []string
}

// groupRefs keeps refs in index order, grouped by user.
func groupRefs(refs []documents.RefEntry) []userRefs {
	var out []userRefs
	pos := make(map[string]int)
	for _, ref := range refs {
		i, ok := pos[ref.UserID]
		if !ok {
			i = len(out)
			pos[ref.UserID] = i
			out = append(out, userRefs{userID: ref.UserID})
		}
		out[i].keys = append(out[i].keys, ref.EntryKey)
	}
	return out
}
