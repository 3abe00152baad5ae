package webhooks

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/services"
)

// Method is the catalog operation that triggered a webhook.
type Method string

const (
	MethodCreate Method = "create"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
)

// Methods lists the webhook methods registered with the catalog.
func Methods() []Method {
	return []Method{MethodCreate, MethodUpdate, MethodDelete}
}

// ParseMethod validates a method path segment.
func ParseMethod(value string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(value))); m {
	case MethodCreate, MethodUpdate, MethodDelete:
		return m, nil
	}
	return "", services.Wrap(services.ErrValidation, "webhooks", "parse method", fmt.Sprintf("unknown method %q", value), nil)
}

// Event is one inbound catalog notification.
type Event struct {
	Method     Method
	Game       catalog.Game
	Sequence   uint64
	ReceivedAt time.Time
}

// Sequencer stamps events with a monotonic arrival number.
type Sequencer struct {
	last atomic.Uint64
}

// Next returns the next sequence number, starting at 1.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}
