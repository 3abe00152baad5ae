package documents

import "slices"

// Unresolved is a store entry awaiting manual disambiguation, with its
// candidates ordered best first.
type Unresolved struct {
	Entry      StoreEntry  `json:"entry"`
	Candidates []Candidate `json:"candidates"`
}

// UnresolvedEntries holds a user's two backlog queues.
type UnresolvedEntries struct {
	NeedApproval []Unresolved `json:"need_approval"`
	Unknown      []StoreEntry `json:"unknown"`
}

// Add queues entry, replacing any earlier queued copy. Entries with
// candidates go to NeedApproval, the rest to Unknown.
func (u *UnresolvedEntries) Add(entry StoreEntry, candidates []Candidate) {
	u.Remove(entry.Key())
	if len(candidates) > 0 {
		u.NeedApproval = append(u.NeedApproval, Unresolved{Entry: entry, Candidates: candidates})
		return
	}
	u.Unknown = append(u.Unknown, entry)
}

// Remove drops key from both queues and reports the queue it was in.
func (u *UnresolvedEntries) Remove(key string) (ResolutionState, bool) {
	state := StateNone
	if i := slices.IndexFunc(u.NeedApproval, func(x Unresolved) bool { return x.Entry.Key() == key }); i >= 0 {
		u.NeedApproval = slices.Delete(u.NeedApproval, i, i+1)
		state = StateNeedsApproval
	}
	if i := slices.IndexFunc(u.Unknown, func(x StoreEntry) bool { return x.Key() == key }); i >= 0 {
		u.Unknown = slices.Delete(u.Unknown, i, i+1)
		state = StateUnknown
	}
	return state, state != StateNone
}

// RemoveStorefront drops every queued entry from sf and returns their keys.
func (u *UnresolvedEntries) RemoveStorefront(sf Storefront) []string {
	var removed []string
	u.NeedApproval = slices.DeleteFunc(u.NeedApproval, func(x Unresolved) bool {
		if x.Entry.Storefront == sf {
			removed = append(removed, x.Entry.Key())
			return true
		}
		return false
	})
	u.Unknown = slices.DeleteFunc(u.Unknown, func(x StoreEntry) bool {
		if x.Storefront == sf {
			removed = append(removed, x.Key())
			return true
		}
		return false
	})
	return removed
}

// Find returns the queued entry for key and which queue holds it.
func (u UnresolvedEntries) Find(key string) (Unresolved, ResolutionState, bool) {
	for _, x := range u.NeedApproval {
		if x.Entry.Key() == key {
			return x, StateNeedsApproval, true
		}
	}
	for _, x := range u.Unknown {
		if x.Key() == key {
			return Unresolved{Entry: x}, StateUnknown, true
		}
	}
	return Unresolved{}, StateNone, false
}

// Len counts entries across both queues.
func (u UnresolvedEntries) Len() int {
	return len(u.NeedApproval) + len(u.Unknown)
}

// Snapshot copies every queued entry with its current state.
func (u UnresolvedEntries) Snapshot() []QueuedEntry {
	out := make([]QueuedEntry, 0, u.Len())
	for _, x := range u.NeedApproval {
		out = append(out, QueuedEntry{Entry: x.Entry, State: StateNeedsApproval})
	}
	for _, x := range u.Unknown {
		out = append(out, QueuedEntry{Entry: x, State: StateUnknown})
	}
	return out
}

// QueuedEntry pairs an unresolved entry with its queue.
type QueuedEntry struct {
	Entry StoreEntry
	State ResolutionState
}
