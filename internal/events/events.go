package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gamevault/internal/documents"
	"gamevault/internal/logging"
)

// Type tags an event variant.
type Type string

const (
	TypeResolve   Type = "resolve"
	TypeDiff      Type = "diff"
	TypeReject    Type = "reject"
	TypeReconcile Type = "reconcile"
)

// Event is implemented by every variant.
type Event interface {
	EventType() Type
	LogAttrs() []slog.Attr
}

// ResolveKind names the resolver step that produced a ResolveEvent.
type ResolveKind string

const (
	ResolveRetrieve ResolveKind = "retrieve"
	ResolveResolve  ResolveKind = "resolve"
	ResolveDigest   ResolveKind = "digest"
	ResolveSearch   ResolveKind = "search"
)

// ResolveEvent records one resolution transition or lookup.
type ResolveEvent struct {
	Kind       ResolveKind               `json:"kind"`
	UserID     string                    `json:"user_id,omitempty"`
	EntryKey   string                    `json:"entry_key,omitempty"`
	Source     string                    `json:"source,omitempty"`
	From       documents.ResolutionState `json:"from,omitempty"`
	To         documents.ResolutionState `json:"to,omitempty"`
	GameID     int64                     `json:"game_id,omitempty"`
	Candidates int                       `json:"candidates,omitempty"`
	TopScore   float64                   `json:"top_score,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

func (ResolveEvent) EventType() Type { return TypeResolve }

func (e ResolveEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.String("kind", string(e.Kind)),
		logging.String(logging.FieldUserID, e.UserID),
		logging.EntryKey(e.EntryKey),
		logging.String("from", e.From.String()),
		logging.String("to", e.To.String()),
	}
	if e.Source != "" {
		attrs = append(attrs, logging.String(logging.FieldSource, e.Source))
	}
	if e.GameID != 0 {
		attrs = append(attrs, logging.GameID(e.GameID))
	}
	if e.Candidates > 0 {
		attrs = append(attrs, logging.Int("candidates", e.Candidates), logging.Float64("top_score", e.TopScore))
	}
	if e.Error != "" {
		attrs = append(attrs, logging.String("error", e.Error))
	}
	return attrs
}

// DiffEvent records a catalog update applied to a stored digest.
type DiffEvent struct {
	GameID       int64    `json:"game_id"`
	Fields       []string `json:"fields,omitempty"`
	NeedsResolve bool     `json:"needs_resolve"`
	Stale        bool     `json:"stale,omitempty"`
	Reresolved   int      `json:"reresolved,omitempty"`
	Refreshed    int      `json:"refreshed,omitempty"`
}

func (DiffEvent) EventType() Type { return TypeDiff }

func (e DiffEvent) LogAttrs() []slog.Attr {
	return []slog.Attr{
		logging.GameID(e.GameID),
		logging.Any("fields", e.Fields),
		logging.Bool("needs_resolve", e.NeedsResolve),
		logging.Bool("stale", e.Stale),
		logging.Int("reresolved", e.Reresolved),
		logging.Int("refreshed", e.Refreshed),
	}
}

// Stage names a webhook pipeline stage.
type Stage string

const (
	StagePrefilter Stage = "prefilter"
	StageFilter    Stage = "filter"
	StageException Stage = "exception"
)

// RejectEvent records a webhook event that stopped in the pipeline.
type RejectEvent struct {
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason"`
	GameID  int64  `json:"game_id,omitempty"`
	Method  string `json:"method,omitempty"`
	Message string `json:"message,omitempty"`
}

func (RejectEvent) EventType() Type { return TypeReject }

func (e RejectEvent) LogAttrs() []slog.Attr {
	attrs := logging.DecisionAttrs(string(e.Stage), "rejected", e.Reason)
	attrs = append(attrs, logging.GameID(e.GameID), logging.String("method", e.Method))
	if e.Message != "" {
		attrs = append(attrs, logging.String("message", e.Message))
	}
	return attrs
}

// ReconcileEvent summarizes one reconcile pass.
type ReconcileEvent struct {
	UserID          string        `json:"user_id"`
	Total           int           `json:"total"`
	NewlyResolved   int           `json:"newly_resolved"`
	StillUnresolved int           `json:"still_unresolved"`
	Promoted        int           `json:"promoted"`
	Demoted         int           `json:"demoted"`
	Errors          int           `json:"errors"`
	Cancelled       bool          `json:"cancelled,omitempty"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
}

func (ReconcileEvent) EventType() Type { return TypeReconcile }

func (e ReconcileEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.String(logging.FieldUserID, e.UserID),
		logging.Int("total", e.Total),
		logging.Int("newly_resolved", e.NewlyResolved),
		logging.Int("still_unresolved", e.StillUnresolved),
		logging.Int("promoted", e.Promoted),
		logging.Int("errors", e.Errors),
		logging.Duration("duration", e.Duration),
	}
	if e.Cancelled {
		attrs = append(attrs, logging.Bool("cancelled", true))
	}
	if e.Error != "" {
		attrs = append(attrs, logging.String("error", e.Error))
	}
	return attrs
}

// Envelope is the wire form of an event.
type Envelope struct {
	Type    Type      `json:"type"`
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Payload Event     `json:"payload"`
}

// Wrap stamps evt with a fresh ID and the current time.
func Wrap(evt Event) Envelope {
	return Envelope{
		Type:    evt.EventType(),
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Payload: evt,
	}
}

// Encode renders env as JSON.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" && env.Payload != nil {
		env.Type = env.Payload.EventType()
	}
	return json.Marshal(env)
}
