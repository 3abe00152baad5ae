package documents

import (
	"time"

	"gamevault/internal/catalog"
)

// FailedEvent is a webhook event whose processing raised an error. It is
// kept for retry rather than dropped.
type FailedEvent struct {
	ID          string       `json:"id"`
	Method      string       `json:"method"`
	Game        catalog.Game `json:"game"`
	Kind        string       `json:"kind"`
	Message     string       `json:"message"`
	Attempts    int          `json:"attempts"`
	FirstFailed time.Time    `json:"first_failed"`
	LastFailed  time.Time    `json:"last_failed"`
}

// RefEntry points from a catalog ID back to one user's entry.
type RefEntry struct {
	UserID   string `json:"user_id"`
	EntryKey string `json:"entry_key"`
}

// GameRefs is the reverse index of entries resolved to one catalog ID.
type GameRefs struct {
	GameID  int64      `json:"game_id"`
	Entries []RefEntry `json:"entries"`
}

// UserIndex lists every user with a library document.
type UserIndex struct {
	Users []string `json:"users"`
}
