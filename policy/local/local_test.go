package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snow-ghost/skillforge/core"
)

func TestGuard_WrapTimeout(t *testing.T) {
	g := NewGuard(0)
	ctx := context.Background()
	budget := core.Budget{Timeout: 10 * time.Millisecond}

	start := time.Now()
	err := g.Wrap(ctx, budget, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return nil
		}
	})
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, elapsed.Milliseconds(), int64(10))
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestGuard_WrapIgnoringContextStillReturns(t *testing.T) {
	g := NewGuard(0)
	release := make(chan struct{})
	defer close(release)

	err := g.Wrap(context.Background(), core.Budget{Timeout: 10 * time.Millisecond}, func(context.Context) error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGuard_WrapPassesResult(t *testing.T) {
	g := NewGuard(time.Second)
	boom := errors.New("boom")

	assert.NoError(t, g.Wrap(context.Background(), core.Budget{}, func(context.Context) error { return nil }))
	assert.ErrorIs(t, g.Wrap(context.Background(), core.Budget{}, func(context.Context) error { return boom }), boom)
}

func TestGuard_WrapParentCanceled(t *testing.T) {
	g := NewGuard(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.Wrap(ctx, core.Budget{}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_FallbackTimeout(t *testing.T) {
	g := NewGuard(5 * time.Millisecond)
	err := g.Wrap(context.Background(), core.Budget{}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
