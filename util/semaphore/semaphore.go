// Package semaphore wraps golang.org/x/sync/semaphore's weighted
// semaphore with an acquire-guard so callers release with a method call
// instead of remembering to call Release themselves, adapted from the
// teacher's own util/semaphore down to the part that doesn't depend on
// its daemon-wide tracing package: dispatch.BackendLimiter uses one of
// these per (node, backend) pair to bound spec §5's per-backend i/o pool.
package semaphore

import (
	"context"

	wsemaphore "golang.org/x/sync/semaphore"
)

type S struct {
	ws *wsemaphore.Weighted
}

func New(max int64) *S {
	return &S{wsemaphore.NewWeighted(max)}
}

type AcquireGuard struct {
	s        *S
	released bool
}

// Acquire blocks until a slot is free or ctx is cancelled. The returned
// AcquireGuard is not goroutine-safe.
func (s *S) Acquire(ctx context.Context) (*AcquireGuard, error) {
	if err := s.ws.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return &AcquireGuard{s, false}, nil
}

func (g *AcquireGuard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.s.ws.Release(1)
}
