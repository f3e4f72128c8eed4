package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/util/semaphore"
)

// BackendLimiter bounds concurrent in-flight sends to a single (node,
// backend) pair (spec §5's per-backend i/o pool), so a slow backend on one
// node can't starve the connection it shares with every other backend on
// that node. Limiters are created lazily, one per pair seen.
type BackendLimiter struct {
	max int64

	mu   sync.Mutex
	sems map[string]*semaphore.S
}

// NewBackendLimiter returns a limiter that admits up to max concurrent
// sends per (node, backend) pair.
func NewBackendLimiter(max int64) *BackendLimiter {
	return &BackendLimiter{max: max, sems: make(map[string]*semaphore.S)}
}

func (l *BackendLimiter) semFor(dest key.NodeAddress, backend key.BackendID) *semaphore.S {
	id := fmt.Sprintf("%s#%d", dest.String(), backend)
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[id]
	if !ok {
		s = semaphore.New(l.max)
		l.sems[id] = s
	}
	return s
}

// Acquire blocks until a slot opens for (dest, backend) or ctx is
// cancelled.
func (l *BackendLimiter) Acquire(ctx context.Context, dest key.NodeAddress, backend key.BackendID) (*semaphore.AcquireGuard, error) {
	return l.semFor(dest, backend).Acquire(ctx)
}
