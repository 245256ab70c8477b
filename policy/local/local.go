package local

import (
	"context"
	"errors"
	"time"

	"github.com/snow-ghost/skillforge/core"
)

// DefaultTimeout applies when a Budget carries no timeout.
const DefaultTimeout = 30 * time.Second

// Guard is the in-process core.PolicyGuard. It bounds each call by the
// budget's wall-clock timeout and returns as soon as the deadline passes,
// even if the wrapped function ignores its context.
type Guard struct {
	fallback time.Duration
}

// NewGuard returns a guard that uses fallback when a budget has no timeout.
// A non-positive fallback selects DefaultTimeout.
func NewGuard(fallback time.Duration) *Guard {
	if fallback <= 0 {
		fallback = DefaultTimeout
	}
	return &Guard{fallback: fallback}
}

// Wrap runs run under the budget's timeout. It returns context.DeadlineExceeded
// when the budget elapses and the parent's error when ctx is canceled first.
func (g *Guard) Wrap(ctx context.Context, b core.Budget, run func(ctx context.Context) error) error {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = g.fallback
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(execCtx)
	}()

	select {
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return execCtx.Err()
	case err := <-done:
		return err
	}
}
