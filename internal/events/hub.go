package events

import (
	"context"
	"sync"
)

// Record is a buffered envelope with its hub sequence.
type Record struct {
	Sequence uint64 `json:"seq"`
	Envelope
}

// Hub stores recent events and wakes waiters when new events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Record
	nextSeq  uint64
}

var _ Sink = (*Hub)(nil)

// NewHub constructs a bounded in-memory event buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Emit appends env to the buffer, evicting the oldest record when full.
func (h *Hub) Emit(_ context.Context, env Envelope) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, Record{Sequence: h.nextSeq, Envelope: env})
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns records with sequence greater than since. When wait is true,
// Fetch blocks until at least one record is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Record, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		records, next := h.snapshotLocked(since, limit)
		if len(records) > 0 || !wait {
			return records, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Tail returns the most recent limit records without blocking.
func (h *Hub) Tail(limit int) ([]Record, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.buffer)-limit, 0)
	return append([]Record(nil), h.buffer[start:]...), h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Record, uint64) {
	start := len(h.buffer)
	for i, rec := range h.buffer {
		if rec.Sequence > since {
			start = i
			break
		}
	}
	end := min(start+limit, len(h.buffer))
	if start >= end {
		return nil, h.nextSeq
	}
	out := make([]Record, end-start)
	copy(out, h.buffer[start:end])
	return out, out[len(out)-1].Sequence
}
