package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gamevault/internal/documents"
	"gamevault/internal/events"
)

func TestEncodeProducesTaggedEnvelope(t *testing.T) {
	env := events.Envelope{
		ID:   "abc",
		Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Payload: events.DiffEvent{
			GameID:       42,
			Fields:       []string{"name"},
			NeedsResolve: true,
		},
	}
	raw, err := events.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var decoded struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Time    time.Time       `json:"time"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "diff" || decoded.ID != "abc" {
		t.Fatalf("unexpected envelope %s", raw)
	}
	if !strings.Contains(string(decoded.Payload), `"needs_resolve":true`) {
		t.Fatalf("payload missing fields: %s", decoded.Payload)
	}

	again, _ := events.Encode(env)
	if !bytes.Equal(raw, again) {
		t.Fatal("Encode is not deterministic")
	}
}

func TestWrapStampsIDAndType(t *testing.T) {
	a := events.Wrap(events.RejectEvent{Stage: events.StagePrefilter, Reason: "not_pc_game"})
	b := events.Wrap(events.RejectEvent{Stage: events.StagePrefilter, Reason: "not_pc_game"})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique ids, got %q and %q", a.ID, b.ID)
	}
	if a.Type != events.TypeReject {
		t.Fatalf("type = %q", a.Type)
	}
}

func TestMultiAndRecorder(t *testing.T) {
	var first, second events.Recorder
	sink := events.Multi{&first, nil, &second}
	events.Emit(context.Background(), sink, events.ResolveEvent{Kind: events.ResolveResolve, To: documents.StateResolved})
	events.Emit(context.Background(), sink, events.DiffEvent{GameID: 1})

	if len(first.Envelopes()) != 2 || len(second.Envelopes()) != 2 {
		t.Fatalf("fan-out mismatch: %d %d", len(first.Envelopes()), len(second.Envelopes()))
	}
	resolves := events.Of[events.ResolveEvent](&first)
	if len(resolves) != 1 || resolves[0].To != documents.StateResolved {
		t.Fatalf("Of[ResolveEvent] = %+v", resolves)
	}
	first.Reset()
	if len(first.Envelopes()) != 0 {
		t.Fatal("Reset should clear events")
	}
}

func TestLogSinkWritesEventFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	sink := events.NewLogSink(logger)
	events.Emit(context.Background(), sink, events.RejectEvent{Stage: events.StageFilter, Reason: "future_release_no_hype", GameID: 9})

	line := buf.String()
	for _, want := range []string{`"event_type":"reject"`, `"decision_reason":"future_release_no_hype"`, `"game_id":9`, `"component":"events"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
}
