package webhooks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gamevault/internal/logging"
)

// ErrDispatcherStopped is returned when submitting to a stopped dispatcher.
var ErrDispatcherStopped = errors.New("webhook dispatcher not running")

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, evt Event) Result
}

// Dispatcher fans events out to a fixed set of lanes. Each event goes to
// lane id%N, so events for one game are handled one at a time in arrival
// order.
type Dispatcher struct {
	handler Handler
	lanes   []chan Event
	seq     Sequencer
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher with workers lanes of depth events each.
func NewDispatcher(handler Handler, workers, depth int, logger *slog.Logger) *Dispatcher {
	workers = max(workers, 1)
	depth = max(depth, 1)
	lanes := make([]chan Event, workers)
	for i := range lanes {
		lanes[i] = make(chan Event, depth)
	}
	return &Dispatcher{
		handler: handler,
		lanes:   lanes,
		logger:  logging.NewComponentLogger(logger, "webhook-dispatcher"),
		now:     time.Now,
	}
}

// Start launches one goroutine per lane.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("webhook dispatcher already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.wg.Add(len(d.lanes))
	for i, lane := range d.lanes {
		go d.runLane(runCtx, i, lane)
	}
	return nil
}

// Stop halts the lanes and waits for in-flight events. Queued events that
// were not started are dropped and counted in the log.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel := d.cancel
	d.running = false
	d.cancel = nil
	d.mu.Unlock()

	cancel()
	d.wg.Wait()

	dropped := 0
	for _, lane := range d.lanes {
		for len(lane) > 0 {
			<-lane
			dropped++
		}
	}
	if dropped > 0 {
		logging.WarnWithContext(d.logger, "dispatcher stopped with queued events", "webhook_events_dropped",
			logging.Int("dropped", dropped),
			logging.String(logging.FieldImpact, "dropped updates apply on the next catalog webhook or reconcile"),
		)
	}
}

// Submit stamps evt and enqueues it on its lane. It blocks while the lane
// is full until ctx ends.
func (d *Dispatcher) Submit(ctx context.Context, evt Event) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return 0, ErrDispatcherStopped
	}
	evt.Sequence = d.seq.Next()
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = d.now()
	}
	select {
	case d.lanes[d.laneFor(evt.Game.ID)] <- evt:
		return evt.Sequence, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Pending returns the number of queued events across lanes.
func (d *Dispatcher) Pending() int {
	n := 0
	for _, lane := range d.lanes {
		n += len(lane)
	}
	return n
}

func (d *Dispatcher) laneFor(id int64) int {
	if id < 0 {
		id = -id
	}
	return int(id % int64(len(d.lanes)))
}

func (d *Dispatcher) runLane(ctx context.Context, index int, lane <-chan Event) {
	defer d.wg.Done()
	logger := d.logger.With(logging.Int("lane", index))
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-lane:
			res := d.handler.Handle(ctx, evt)
			logger.Debug("webhook event handled",
				logging.Int64("sequence", int64(evt.Sequence)),
				logging.GameID(evt.Game.ID),
				logging.String("stage", string(res.Stage)),
				logging.Duration("queued", d.now().Sub(evt.ReceivedAt)),
			)
		}
	}
}
