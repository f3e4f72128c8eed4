// Package aggregator composes several asyncresult.Result values (one per
// dispatched sub-operation) into a single Result a caller can wait on,
// using golang.org/x/sync/errgroup to fan in their completions the way the
// teacher pack uses errgroup to fan in concurrent subtasks.
package aggregator

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meshkv/meshkv/asyncresult"
)

// Combine waits for every result in results to complete (each via its own
// goroutine, through errgroup), forwarding every entry it sees onto a
// single aggregate Result as it arrives rather than buffering until all
// inputs finish. An entry is a "success indicator" when it is valid and its
// status is 0 (asyncresult.Entry.Err == nil here); the aggregate completes
// once every input has completed, and its terminal error is cleared if any
// child produced a success indicator, otherwise it is the first non-nil
// child error.
func Combine(ctx context.Context, results ...*asyncresult.Result) *asyncresult.Result {
	agg := asyncresult.New()

	var anySuccess atomic.Bool

	// A bare errgroup.Group, not errgroup.WithContext: WithContext derives a
	// shared context that cancels the instant any one Go func returns an
	// error, which would make every other child's r.Wait race that
	// cancellation instead of its actual completion and let agg.Complete
	// fire while a slower child is still genuinely in flight. Each Wait
	// call below blocks on the caller's own ctx only.
	var g errgroup.Group
	for _, r := range results {
		r := r
		g.Go(func() error {
			_, err := r.Wait(ctx)
			return err
		})
	}

	for _, r := range results {
		r.Subscribe(asyncresult.Subscriber{
			OnEntry: func(e asyncresult.Entry) {
				if e.Err == nil {
					anySuccess.Store(true)
				}
				agg.Process(e)
			},
		})
	}

	go func() {
		err := g.Wait()
		if anySuccess.Load() {
			err = nil
		}
		agg.Complete(err)
	}()

	return agg
}
