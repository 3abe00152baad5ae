package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"gamevault/internal/config"
	"gamevault/internal/engine"
	"gamevault/internal/logging"
	"gamevault/internal/webhooks"
)

// Daemon runs the API, the webhook dispatcher and the reconcile scheduler
// and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	engine *engine.Engine
	logger *slog.Logger
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	StartedAt        time.Time
	DatabasePath     string
	LockFilePath     string
	APIAddress       string
	WebhooksEnabled  bool
	WebhooksPending  int
	Webhooks         webhooks.Stats
	ReconcileEnabled bool
}

// New constructs a daemon around an assembled engine.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		engine:   eng,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, then launches the dispatcher, the
// scheduler and the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gamevault daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if d.cfg.Webhooks.Enabled {
		if err := d.engine.Dispatcher.Start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start webhook dispatcher: %w", err)
		}
	}
	if d.cfg.Reconcile.Enabled {
		d.wg.Go(func() {
			d.engine.Scheduler.Run(runCtx)
		})
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.engine.Dispatcher.Stop()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("gamevault daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
		logging.Bool("webhooks", d.cfg.Webhooks.Enabled),
		logging.Bool("reconcile", d.cfg.Reconcile.Enabled),
	)
	return nil
}

// Stop halts background work and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.engine.Dispatcher.Stop()
	d.wg.Wait()
	d.engine.Notifier.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("gamevault daemon stopped")
}

// Close stops the daemon. The store is owned by the caller.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Addr returns the API listener address, or empty when not listening.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler returns the router serving the API, metrics and webhook intake.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:          d.running.Load(),
		PID:              os.Getpid(),
		StartedAt:        startedAt,
		DatabasePath:     d.cfg.DatabasePath(),
		LockFilePath:     d.lockPath,
		APIAddress:       d.api.addr(),
		WebhooksEnabled:  d.cfg.Webhooks.Enabled,
		WebhooksPending:  d.engine.Dispatcher.Pending(),
		Webhooks:         d.engine.Pipeline.Stats(),
		ReconcileEnabled: d.cfg.Reconcile.Enabled,
	}
}
