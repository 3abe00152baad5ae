package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"gamevault/internal/services"
)

// Limiter gates catalog requests. It is safe for concurrent use.
type Limiter struct {
	qps    float64
	tokens *rate.Limiter
	conns  *semaphore.Weighted
}

// New builds a limiter issuing at most qps tokens per second. maxConnections
// caps concurrent in-flight requests; zero or less disables the cap.
func New(qps float64, maxConnections int) (*Limiter, error) {
	if qps <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "ratelimit", "new", fmt.Sprintf("qps must be positive, got %v", qps), nil)
	}
	l := &Limiter{
		qps:    qps,
		tokens: rate.NewLimiter(rate.Limit(qps), 1),
	}
	if maxConnections > 0 {
		l.conns = semaphore.NewWeighted(int64(maxConnections))
	}
	return l, nil
}

// QPS reports the configured quota.
func (l *Limiter) QPS() float64 {
	return l.qps
}

// Wait blocks until a token is available and consumes it. The only error is
// the context ending first; no token is consumed in that case.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.tokens.Wait(ctx); err != nil {
		return fmt.Errorf("wait for catalog token: %w", contextCause(ctx, err))
	}
	return nil
}

// Acquire reserves a connection slot and then a token. The returned release
// frees the slot; it is safe to call more than once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l.conns != nil {
		if err := l.conns.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for catalog connection: %w", err)
		}
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			if l.conns != nil {
				l.conns.Release(1)
			}
		})
	}
	if err := l.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

// rate.Limiter reports "would exceed context deadline" as a plain error
// before the deadline actually passes; surface it as the deadline.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return err
}
