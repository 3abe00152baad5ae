package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gamevault/internal/logging"
	"gamevault/internal/services"
)

// Scheduler runs a pass for every known user on an interval.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     *slog.Logger
}

// NewScheduler builds a scheduler. A non-positive interval disables the
// ticker; RunOnce still works.
func NewScheduler(reconciler *Reconciler, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logging.NewComponentLogger(logger, "reconcile-scheduler"),
	}
}

// Run blocks, running a round every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					s.logger.Info("daemon shutting down, reconcile round cancelled")
					return
				}
				logging.WarnWithContext(s.logger, "reconcile round failed", "reconcile_round_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, passHint(err)),
				)
			}
		}
	}
}

// RunOnce runs one pass per user. A fatal error stops the round since it
// would fail every remaining user too.
func (s *Scheduler) RunOnce(ctx context.Context) ([]Report, error) {
	users, err := s.reconciler.libraries.Users(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(users))
	for _, user := range users {
		report, err := s.reconciler.Run(ctx, user)
		reports = append(reports, report)
		if err != nil && (services.IsFatal(err) || ctx.Err() != nil) {
			return reports, err
		}
	}
	return reports, nil
}
