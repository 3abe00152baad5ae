package webhooks_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/webhooks"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen map[int64][]uint64
	done chan struct{}
	want int
}

func (h *recordingHandler) Handle(_ context.Context, evt webhooks.Event) webhooks.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[evt.Game.ID] = append(h.seen[evt.Game.ID], evt.Sequence)
	h.want--
	if h.want == 0 {
		close(h.done)
	}
	return webhooks.Result{Sequence: evt.Sequence, GameID: evt.Game.ID}
}

func TestDispatcherPreservesPerGameOrder(t *testing.T) {
	const games, perGame = 7, 20
	h := &recordingHandler{seen: make(map[int64][]uint64), done: make(chan struct{}), want: games * perGame}
	d := webhooks.NewDispatcher(h, 3, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	for i := range perGame {
		for id := int64(1); id <= games; id++ {
			if _, err := d.Submit(ctx, webhooks.Event{Game: catalog.Game{ID: id, UpdatedAt: int64(i)}}); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
	}
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for events")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, seqs := range h.seen {
		if len(seqs) != perGame {
			t.Fatalf("game %d: %d events, want %d", id, len(seqs), perGame)
		}
		for i := 1; i < len(seqs); i++ {
			if seqs[i] <= seqs[i-1] {
				t.Fatalf("game %d out of order: %v", id, seqs)
			}
		}
	}
}

func TestDispatcherRejectsWhenStopped(t *testing.T) {
	d := webhooks.NewDispatcher(&recordingHandler{seen: map[int64][]uint64{}, done: make(chan struct{})}, 1, 1, nil)
	if _, err := d.Submit(context.Background(), webhooks.Event{}); !errors.Is(err, webhooks.ErrDispatcherStopped) {
		t.Fatalf("err = %v, want ErrDispatcherStopped", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	d.Stop()
	d.Stop()
	if _, err := d.Submit(context.Background(), webhooks.Event{}); !errors.Is(err, webhooks.ErrDispatcherStopped) {
		t.Fatalf("err after stop = %v", err)
	}
}

func TestSequencerIsMonotonic(t *testing.T) {
	var s webhooks.Sequencer
	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for range 100 {
		wg.Go(func() { seen <- s.Next() })
	}
	wg.Wait()
	close(seen)
	unique := make(map[uint64]bool)
	for n := range seen {
		if n == 0 || unique[n] {
			t.Fatalf("duplicate or zero sequence %d", n)
		}
		unique[n] = true
	}
	if len(unique) != 100 {
		t.Fatalf("got %d sequences", len(unique))
	}
}
