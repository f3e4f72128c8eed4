package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/asyncresult"
)

func TestCombineClearsErrorWhenAnyChildSucceeds(t *testing.T) {
	failing := asyncresult.New()
	succeeding := asyncresult.New()

	agg := Combine(context.Background(), failing, succeeding)

	failing.Process(asyncresult.Entry{Source: "a", Err: errors.New("boom")})
	failing.Complete(errors.New("boom"))

	succeeding.Process(asyncresult.Entry{Source: "b", Err: nil})
	succeeding.Complete(nil)

	entries, err := agg.Wait(context.Background())
	require.NoError(t, err, "one child's success indicator must clear the aggregate error")
	require.Len(t, entries, 2)
}

func TestCombinePropagatesFirstErrorWhenNoChildSucceeds(t *testing.T) {
	wantErr := errors.New("all replicas down")
	first := asyncresult.New()
	second := asyncresult.New()

	agg := Combine(context.Background(), first, second)

	first.Process(asyncresult.Entry{Source: "a", Err: errors.New("down")})
	first.Complete(wantErr)

	second.Process(asyncresult.Entry{Source: "b", Err: errors.New("also down")})
	second.Complete(errors.New("also down"))

	_, err := agg.Wait(context.Background())
	require.Error(t, err, "with no child success indicator the aggregate must stay failed")
}

func TestCombineForwardsEveryEntryAsItArrives(t *testing.T) {
	a := asyncresult.New()
	b := asyncresult.New()

	agg := Combine(context.Background(), a, b)

	var seen []interface{}
	agg.Subscribe(asyncresult.Subscriber{OnEntry: func(e asyncresult.Entry) {
		seen = append(seen, e.Source)
	}})

	a.Process(asyncresult.Entry{Source: 1})
	b.Process(asyncresult.Entry{Source: 2})
	a.Complete(nil)
	b.Complete(nil)

	_, err := agg.Wait(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []interface{}{1, 2}, seen)
}

// TestCombineDoesNotCompleteBeforeSlowerChildFinishes exercises the
// premature-completion race: a fast child fails immediately while a slower
// child is still in flight. The aggregate must not complete (and must not
// drop the slow child's later entry) until the slow child actually finishes,
// even though the fast child's failure resolves first.
func TestCombineDoesNotCompleteBeforeSlowerChildFinishes(t *testing.T) {
	fast := asyncresult.New()
	slow := asyncresult.New()

	agg := Combine(context.Background(), fast, slow)

	finalCh := make(chan error, 1)
	agg.Subscribe(asyncresult.Subscriber{OnFinal: func(err error) { finalCh <- err }})

	fast.Complete(errors.New("fast failure"))

	select {
	case <-finalCh:
		t.Fatal("aggregate completed before the slower child finished")
	case <-time.After(50 * time.Millisecond):
	}

	slow.Process(asyncresult.Entry{Source: "slow", Err: nil})
	slow.Complete(nil)

	select {
	case err := <-finalCh:
		require.NoError(t, err, "slow child's success indicator must clear the aggregate error")
	case <-time.After(time.Second):
		t.Fatal("aggregate never completed after the slow child finished")
	}

	entries, err := agg.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCombineWithNoResultsCompletesImmediately(t *testing.T) {
	agg := Combine(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	entries, err := agg.Wait(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}
