package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/key"
)

// TestBackendLimiterBoundsConcurrency verifies at most max acquisitions for
// the same (node, backend) pair run at once (spec §5's per-backend i/o
// pool), while a distinct pair is never blocked by the first.
func TestBackendLimiterBoundsConcurrency(t *testing.T) {
	l := NewBackendLimiter(2)
	dest := key.NodeAddress{Host: "node0", Port: 1025}

	var inFlight, maxSeen int32
	acquire := func(backend key.BackendID) {
		guard, err := l.Acquire(context.Background(), dest, backend)
		require.NoError(t, err)
		defer guard.Release()

		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			acquire(key.BackendID(1))
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	require.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
}

// TestBackendLimiterSeparatesPairs confirms distinct (node, backend) pairs
// get independent semaphores.
func TestBackendLimiterSeparatesPairs(t *testing.T) {
	l := NewBackendLimiter(1)
	dest := key.NodeAddress{Host: "node0", Port: 1025}

	g1, err := l.Acquire(context.Background(), dest, key.BackendID(1))
	require.NoError(t, err)
	defer g1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	g2, err := l.Acquire(ctx, dest, key.BackendID(2))
	require.NoError(t, err, "a different backend id must not share backend 1's slot")
	g2.Release()
}
