package resolver

import (
	"context"
	"errors"
	"fmt"

	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/logging"
	"gamevault/internal/services"
)

// Approve resolves key to gameID by hand. The game is fetched fresh from
// the catalog; a queued candidate digest is used when the catalog cannot be
// reached.
func (r *Resolver) Approve(ctx context.Context, userID, key string, gameID int64) (documents.LibraryEntry, error) {
	if gameID <= 0 {
		return documents.LibraryEntry{}, services.Wrap(services.ErrValidation, "resolver", "approve", "game id required", nil)
	}
	ctx = services.WithSource(services.WithUserID(ctx, userID), "manual")
	lib, err := r.repo.Library(ctx, userID)
	if err != nil {
		return documents.LibraryEntry{}, err
	}
	if _, ok := lib.Entry(key); !ok {
		return documents.LibraryEntry{}, entryNotFound("approve", key)
	}

	digest, err := r.approvalDigest(ctx, lib, key, gameID)
	if err != nil {
		return documents.LibraryEntry{}, err
	}
	outcome := documents.ResolvedOutcome(digest)
	outcome.Manual = true

	var prior documents.Placement
	updated, err := r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		entry, ok := lib.Entry(key)
		if !ok {
			return entryNotFound("approve", key)
		}
		prior = lib.Place(entry, outcome, r.repo.Now())
		return nil
	})
	if err != nil {
		return documents.LibraryEntry{}, err
	}
	r.storeDigest(ctx, digest)
	r.record(ctx, events.ResolveResolve, userID, key, prior.State, outcome)
	resolved, _ := updated.Resolved(key)
	return resolved, nil
}

func (r *Resolver) approvalDigest(ctx context.Context, lib documents.UserLibrary, key string, gameID int64) (documents.GameDigest, error) {
	res := r.fetcher.GetGames(ctx, []int64{gameID})[gameID]
	if res.Err == nil {
		return documents.DigestFromGame(res.Value), nil
	}
	if errors.Is(res.Err, services.ErrNotFound) || services.IsFatal(res.Err) {
		return documents.GameDigest{}, res.Err
	}
	if queued, _, ok := lib.Unresolved.Find(key); ok {
		for _, c := range queued.Candidates {
			if c.Digest.ID == gameID {
				return c.Digest, nil
			}
		}
	}
	return documents.GameDigest{}, res.Err
}

// Unmatch moves a resolved entry back to the unknown queue.
func (r *Resolver) Unmatch(ctx context.Context, userID, key string) error {
	ctx = services.WithSource(services.WithUserID(ctx, userID), "manual")
	var prior documents.Placement
	_, err := r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		current, ok := lib.Resolved(key)
		if !ok {
			return entryNotFound("unmatch", key)
		}
		prior = lib.Place(current.Entry, documents.UnknownOutcome(), r.repo.Now())
		return nil
	})
	if err != nil {
		return err
	}
	r.record(ctx, events.ResolveResolve, userID, key, prior.State, documents.UnknownOutcome())
	return nil
}

// Remove deletes key from the user's library.
func (r *Resolver) Remove(ctx context.Context, userID, key string) error {
	_, err := r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		if _, ok := lib.Remove(key); !ok {
			return entryNotFound("remove", key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info("entry removed", logging.String(logging.FieldUserID, userID), logging.EntryKey(key))
	return nil
}

// RemoveStorefront deletes every entry the user imported from sf and
// returns how many were removed.
func (r *Resolver) RemoveStorefront(ctx context.Context, userID string, sf documents.Storefront) (int, error) {
	var removed int
	_, err := r.repo.Update(ctx, userID, func(lib *documents.UserLibrary) error {
		removed = len(lib.RemoveStorefront(sf))
		if removed == 0 {
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
	r.logger.Info("storefront removed",
		logging.String(logging.FieldUserID, userID),
		logging.String("storefront", string(sf)),
		logging.Int("removed", removed),
	)
	return removed, nil
}

func entryNotFound(op, key string) error {
	return services.Wrap(services.ErrNotFound, "resolver", op, fmt.Sprintf("entry %s not in library", key), nil)
}
