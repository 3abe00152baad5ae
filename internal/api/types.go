package api

import (
	"encoding/json"
	"time"

	"gamevault/internal/documents"
	"gamevault/internal/events"
	"gamevault/internal/reconcile"
	"gamevault/internal/webhooks"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t for payloads. The zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// DaemonStatus summarizes the running daemon.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	StartedAt    string          `json:"startedAt,omitempty"`
	DatabasePath string          `json:"databasePath"`
	LockFilePath string          `json:"lockFilePath"`
	Catalog      CatalogStatus   `json:"catalog"`
	Webhooks     WebhookStatus   `json:"webhooks"`
	Reconcile    ReconcileStatus `json:"reconcile"`
}

// CatalogStatus describes the catalog connection settings in effect.
type CatalogStatus struct {
	BaseURL string  `json:"baseUrl"`
	QPS     float64 `json:"qps"`
}

// WebhookStatus reports intake counters.
type WebhookStatus struct {
	Enabled  bool           `json:"enabled"`
	Pending  int            `json:"pending"`
	Failures int            `json:"failures"`
	Stats    webhooks.Stats `json:"stats"`
}

// ReconcileStatus reports the backlog schedule.
type ReconcileStatus struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
	Users           int  `json:"users"`
}

// ResolveResponse is returned after ingesting one entry.
type ResolveResponse struct {
	Key     string            `json:"key"`
	Outcome documents.Outcome `json:"outcome"`
}

// RemoveStorefrontResponse reports a bulk storefront removal.
type RemoveStorefrontResponse struct {
	Storefront documents.Storefront `json:"storefront"`
	Removed    int                  `json:"removed"`
}

// UnresolvedItem is one backlog entry.
type UnresolvedItem struct {
	Key        string                    `json:"key"`
	State      documents.ResolutionState `json:"state"`
	Entry      documents.StoreEntry      `json:"entry"`
	Candidates []documents.Candidate     `json:"candidates,omitempty"`
}

// UnresolvedResponse lists a user's backlog.
type UnresolvedResponse struct {
	UserID string           `json:"userId"`
	Items  []UnresolvedItem `json:"items"`
}

// FromUnresolved flattens both backlog queues.
func FromUnresolved(userID string, u documents.UnresolvedEntries) UnresolvedResponse {
	items := make([]UnresolvedItem, 0, u.Len())
	for _, q := range u.NeedApproval {
		items = append(items, UnresolvedItem{
			Key:        q.Entry.Key(),
			State:      documents.StateNeedsApproval,
			Entry:      q.Entry,
			Candidates: q.Candidates,
		})
	}
	for _, e := range u.Unknown {
		items = append(items, UnresolvedItem{Key: e.Key(), State: documents.StateUnknown, Entry: e})
	}
	return UnresolvedResponse{UserID: userID, Items: items}
}

// ApproveRequest picks the catalog game for a queued entry.
type ApproveRequest struct {
	GameID int64 `json:"gameId"`
}

// ReconcileResponse carries a pass report with its derived totals.
type ReconcileResponse struct {
	Report          reconcile.Report `json:"report"`
	NewlyResolved   int              `json:"newlyResolved"`
	StillUnresolved int              `json:"stillUnresolved"`
	Promoted        int              `json:"promoted"`
	Demoted         int              `json:"demoted"`
	DurationMillis  int64            `json:"durationMs"`
}

// FromReport derives the response totals.
func FromReport(r reconcile.Report) ReconcileResponse {
	return ReconcileResponse{
		Report:          r,
		NewlyResolved:   r.NewlyResolved(),
		StillUnresolved: r.StillUnresolved(),
		Promoted:        r.Promoted(),
		Demoted:         r.Demoted(),
		DurationMillis:  r.Duration().Milliseconds(),
	}
}

// EventRecord is a buffered event with its payload kept raw.
type EventRecord struct {
	Sequence uint64          `json:"seq"`
	Type     events.Type     `json:"type"`
	ID       string          `json:"id"`
	Time     string          `json:"time"`
	Payload  json.RawMessage `json:"payload"`
}

// EventsResponse is one page of the event buffer.
type EventsResponse struct {
	Events []EventRecord `json:"events"`
	Next   uint64        `json:"next"`
}

// FromRecords converts hub records for transport.
func FromRecords(records []events.Record) ([]EventRecord, error) {
	out := make([]EventRecord, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, EventRecord{
			Sequence: rec.Sequence,
			Type:     rec.Type,
			ID:       rec.ID,
			Time:     FormatTime(rec.Time),
			Payload:  payload,
		})
	}
	return out, nil
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
