package events

import (
	"context"
	"log/slog"
	"sync"

	"gamevault/internal/logging"
)

// Sink receives events. Implementations must not block for long.
type Sink interface {
	Emit(ctx context.Context, env Envelope)
}

// Emit wraps evt and hands it to sink. A nil sink drops the event.
func Emit(ctx context.Context, sink Sink, evt Event) {
	if sink == nil || evt == nil {
		return
	}
	sink.Emit(ctx, Wrap(evt))
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Envelope) {}

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink builds a sink over logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "events")}
}

func (s *LogSink) Emit(ctx context.Context, env Envelope) {
	if env.Payload == nil {
		return
	}
	attrs := append([]slog.Attr{
		logging.String("event_id", env.ID),
		logging.String(logging.FieldEventType, string(env.Type)),
	}, env.Payload.LogAttrs()...)
	attrs = append(attrs, logging.ContextFields(ctx)...)
	s.logger.LogAttrs(ctx, slog.LevelInfo, string(env.Type)+" event", attrs...)
}

// Multi fans each event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, env Envelope) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, env)
		}
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
}

func (r *Recorder) Emit(_ context.Context, env Envelope) {
	r.mu.Lock()
	r.events = append(r.events, env)
	r.mu.Unlock()
}

// Envelopes returns a copy of everything recorded.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// Reset drops recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Of returns the recorded payloads of type T.
func Of[T Event](r *Recorder) []T {
	var out []T
	for _, env := range r.Envelopes() {
		if v, ok := env.Payload.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
