package documents

import (
	"slices"
	"time"
)

// LibraryEntry is a resolved store entry with the digest it resolved to.
type LibraryEntry struct {
	Entry      StoreEntry `json:"entry"`
	Digest     GameDigest `json:"digest"`
	ResolvedAt time.Time  `json:"resolved_at"`
	Manual     bool       `json:"manual,omitempty"`
}

// UserLibrary is the single per-user document.
type UserLibrary struct {
	UserID     string            `json:"user_id"`
	Entries    []LibraryEntry    `json:"entries"`
	Unresolved UnresolvedEntries `json:"unresolved"`
	Version    int64             `json:"version"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Placement describes where an entry was before a change.
type Placement struct {
	Key    string
	State  ResolutionState
	GameID int64
}

// Locate reports where key currently sits.
func (l *UserLibrary) Locate(key string) Placement {
	if i := l.indexResolved(key); i >= 0 {
		return Placement{Key: key, State: StateResolved, GameID: l.Entries[i].Digest.ID}
	}
	if _, state, ok := l.Unresolved.Find(key); ok {
		return Placement{Key: key, State: state}
	}
	return Placement{Key: key, State: StateNone}
}

// Resolved returns the resolved entry for key.
func (l *UserLibrary) Resolved(key string) (LibraryEntry, bool) {
	if i := l.indexResolved(key); i >= 0 {
		return l.Entries[i], true
	}
	return LibraryEntry{}, false
}

// Place removes entry from every location and inserts it where outcome
// says. It returns the prior placement.
func (l *UserLibrary) Place(entry StoreEntry, outcome Outcome, now time.Time) Placement {
	prior := l.take(entry.Key())
	switch outcome.State {
	case StateResolved:
		if outcome.Digest != nil {
			l.Entries = append(l.Entries, LibraryEntry{
				Entry:      entry,
				Digest:     *outcome.Digest,
				ResolvedAt: now.UTC(),
				Manual:     outcome.Manual,
			})
		}
	case StateNeedsApproval:
		l.Unresolved.Add(entry, outcome.Candidates)
	case StateUnknown:
		l.Unresolved.Add(entry, nil)
	}
	return prior
}

// Remove deletes key from every location.
func (l *UserLibrary) Remove(key string) (Placement, bool) {
	prior := l.take(key)
	return prior, prior.State != StateNone
}

// RemoveStorefront deletes every entry from sf.
func (l *UserLibrary) RemoveStorefront(sf Storefront) []Placement {
	var removed []Placement
	l.Entries = slices.DeleteFunc(l.Entries, func(e LibraryEntry) bool {
		if e.Entry.Storefront == sf {
			removed = append(removed, Placement{Key: e.Entry.Key(), State: StateResolved, GameID: e.Digest.ID})
			return true
		}
		return false
	})
	for _, entry := range l.Unresolved.Snapshot() {
		if entry.Entry.Storefront == sf {
			removed = append(removed, Placement{Key: entry.Entry.Key(), State: entry.State})
		}
	}
	l.Unresolved.RemoveStorefront(sf)
	return removed
}

// RefreshDigest replaces the snapshot on every entry resolved to d.ID and
// returns how many changed.
func (l *UserLibrary) RefreshDigest(d GameDigest) int {
	n := 0
	for i := range l.Entries {
		if l.Entries[i].Digest.ID == d.ID {
			l.Entries[i].Digest = d
			n++
		}
	}
	return n
}

// KeysResolvedTo lists entries resolved to gameID.
func (l *UserLibrary) KeysResolvedTo(gameID int64) []string {
	var keys []string
	for _, e := range l.Entries {
		if e.Digest.ID == gameID {
			keys = append(keys, e.Entry.Key())
		}
	}
	return keys
}

// Entry returns the raw store entry for key from any location.
func (l *UserLibrary) Entry(key string) (StoreEntry, bool) {
	if e, ok := l.Resolved(key); ok {
		return e.Entry, true
	}
	if u, _, ok := l.Unresolved.Find(key); ok {
		return u.Entry, true
	}
	return StoreEntry{}, false
}

// Len counts entries in every location.
func (l *UserLibrary) Len() int {
	return len(l.Entries) + l.Unresolved.Len()
}

func (l *UserLibrary) take(key string) Placement {
	prior := l.Locate(key)
	if i := l.indexResolved(key); i >= 0 {
		l.Entries = slices.Delete(l.Entries, i, i+1)
	}
	l.Unresolved.Remove(key)
	return prior
}

func (l *UserLibrary) indexResolved(key string) int {
	return slices.IndexFunc(l.Entries, func(e LibraryEntry) bool { return e.Entry.Key() == key })
}
