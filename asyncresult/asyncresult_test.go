package asyncresult

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestProcessPrecedesComplete verifies spec §8 invariant 2: a subscriber
// attached before completion sees every Process call before OnFinal.
func TestProcessPrecedesComplete(t *testing.T) {
	r := New()
	r.SetTotal(2)

	var mu sync.Mutex
	var entries []Entry
	finalCalled := false

	r.Subscribe(Subscriber{
		OnEntry: func(e Entry) {
			mu.Lock()
			defer mu.Unlock()
			require.False(t, finalCalled, "OnEntry must not fire after OnFinal")
			entries = append(entries, e)
		},
		OnFinal: func(err error) {
			mu.Lock()
			defer mu.Unlock()
			finalCalled = true
		},
	})

	r.Process(Entry{Source: 1})
	r.Process(Entry{Source: 2})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 2)
	require.True(t, finalCalled)
}

// TestLateSubscriberReplay verifies a subscriber attached after the
// Result already completed is replayed every entry, then OnFinal, both
// synchronously from Subscribe.
func TestLateSubscriberReplay(t *testing.T) {
	r := New()
	r.Process(Entry{Source: "a"})
	r.Process(Entry{Source: "b"})
	r.Complete(nil)

	var seen []Entry
	finalErr := errSentinel
	r.Subscribe(Subscriber{
		OnEntry: func(e Entry) { seen = append(seen, e) },
		OnFinal: func(err error) { finalErr = err },
	})

	require.Len(t, seen, 2)
	require.Equal(t, "a", seen[0].Source)
	require.Equal(t, "b", seen[1].Source)
	require.Nil(t, finalErr)
}

var errSentinel = context.Canceled

// TestCompleteExactlyOnce verifies spec §8 invariant 1 at the Result
// level: OnFinal fires exactly once even if entries keep arriving with a
// stale reply after Complete, and Wait sees the same terminal error every
// caller gets.
func TestCompleteExactlyOnce(t *testing.T) {
	r := New()

	var finalCount int
	var mu sync.Mutex
	r.Subscribe(Subscriber{OnFinal: func(error) {
		mu.Lock()
		finalCount++
		mu.Unlock()
	}})

	r.Complete(nil)
	r.Process(Entry{Source: "late, after completion"}) // must be swallowed
	r.Complete(context.DeadlineExceeded)                // must be a no-op

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, finalCount)
}

// TestSetTotalCompletesOnLastEntry verifies a Result with no explicit
// Complete call still reaches terminal once entries received match total,
// the ordinary "dispatch finished, replies came back" path.
func TestSetTotalCompletesOnLastEntry(t *testing.T) {
	r := New()
	r.Process(Entry{Source: 1})
	r.SetTotal(2)
	require.False(t, completed(t, r))

	r.Process(Entry{Source: 2})
	require.True(t, completed(t, r))
}

func completed(t *testing.T, r *Result) bool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	return err != context.DeadlineExceeded
}

// TestWaitRespectsContext verifies Wait returns ctx.Err() without
// blocking forever when the Result never completes.
func TestWaitRespectsContext(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestConcurrentProcessSerializesToOneSubscriber verifies entries arriving
// from many goroutines still reach a single subscriber one at a time
// (spec §5: "entries may be observed serialized... even if arriving on
// multiple threads").
func TestConcurrentProcessSerializesToOneSubscriber(t *testing.T) {
	r := New()
	const n = 50

	var mu sync.Mutex
	inCallback := false
	count := 0
	r.Subscribe(Subscriber{OnEntry: func(Entry) {
		mu.Lock()
		require.False(t, inCallback, "OnEntry re-entered concurrently")
		inCallback = true
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		count++
		inCallback = false
		mu.Unlock()
	}})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Process(Entry{Source: i})
		}(i)
	}
	wg.Wait()
	r.SetTotal(n)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, n, count)
}
