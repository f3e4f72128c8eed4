// Package asyncresult implements the multi-entry future returned by every
// session operation: dispatch pushes zero or more entries into it as
// replies arrive, then marks it complete once every transaction it issued
// has reached a terminal state (or failed outright before any send). The
// locking shape is the same mutex+condition-variable pattern the teacher
// uses for its step queue, adapted from a priority queue to a simple
// completion latch; unlike the teacher's queue, every delivery to a
// subscriber happens while still holding that one mutex, so entries reach
// every subscriber in the exact order Process/Complete were called in,
// even when they race across goroutines (spec §3: "entries may be
// observed serialized... even if arriving on multiple threads").
package asyncresult

import (
	"context"
	"sync"

	"github.com/meshkv/meshkv/key"
)

// Entry is one reply delivered to a Result: a per-node, per-group outcome
// of the operation the Result was returned for.
type Entry struct {
	Source interface{}     // typically a key.GroupID; the checker groups by it
	Addr   key.NodeAddress // which node actually sent this reply
	Data   interface{}
	Err    error
}

// Subscriber receives entries as they are processed and a final call once
// the Result completes. OnEntry may be nil if the caller only cares about
// completion; OnFinal may be nil if the caller only cares about entries.
type Subscriber struct {
	OnEntry func(Entry)
	OnFinal func(error)
}

// Result is a Future over a stream of Entry values. It supports
// subscribing both before and after entries have already arrived: a late
// subscriber is replayed every entry seen so far before being attached for
// live updates, so no entry is ever missed regardless of subscribe timing.
//
// Subscriber callbacks must not call back into the same Result (Process,
// Complete, Subscribe or SetTotal) from the callback's own goroutine: r.mu
// is held for the duration of every delivery, and sync.Mutex is not
// reentrant. Nothing in this module does; a subscriber that needs to fan
// into another Result (as aggregator.Combine and session.applyPolicy do)
// calls methods on that other Result instead.
type Result struct {
	mu   sync.Mutex
	cond *sync.Cond

	total     int // -1 until SetTotal is called
	entries   []Entry
	done      bool
	finalErr  error
	observers []Subscriber
}

// New returns a Result with an as-yet-unknown total entry count. Dispatch
// calls SetTotal once it has finished issuing every send for the
// operation, so a Result can legitimately complete with zero entries if
// dispatch failed before sending anything.
func New() *Result {
	r := &Result{total: -1}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// SetTotal records how many entries this Result expects before it can
// complete on its own (absent an explicit Complete call). Calling it twice
// panics: it is a programming error in a dispatch strategy, not a runtime
// condition callers need to handle.
func (r *Result) SetTotal(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total != -1 {
		panic("asyncresult: SetTotal called twice")
	}
	r.total = n
	r.maybeCompleteAndNotifyLocked(nil)
}

// Process appends an entry and notifies every subscriber and waiter. It
// may be called after the Result already completed (a stale reply racing
// shutdown); such an entry is dropped without being recorded or delivered,
// and no already-invoked OnFinal fires twice.
func (r *Result) Process(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.entries = append(r.entries, e)
	for _, s := range r.observers {
		if s.OnEntry != nil {
			s.OnEntry(e)
		}
	}
	r.maybeCompleteAndNotifyLocked(nil)
}

// Complete marks the Result done immediately, regardless of how many
// entries have arrived relative to total. Used when dispatch fails before
// any send (e.g. no route for the key) and there will never be entries to
// wait for.
func (r *Result) Complete(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maybeCompleteAndNotifyLocked(&err)
}

// maybeCompleteAndNotifyLocked transitions the Result to done, either
// because forceErr is non-nil (an explicit Complete call) or because
// entries received have reached the expected total, then delivers OnFinal
// to every subscriber. It is a no-op if already done or not yet at total.
// Callers must hold r.mu; it is never called from outside this file.
func (r *Result) maybeCompleteAndNotifyLocked(forceErr *error) {
	if r.done {
		return
	}
	if forceErr == nil && (r.total < 0 || len(r.entries) < r.total) {
		return
	}
	r.done = true
	if forceErr != nil {
		r.finalErr = *forceErr
	}
	r.cond.Broadcast()
	for _, s := range r.observers {
		if s.OnFinal != nil {
			s.OnFinal(r.finalErr)
		}
	}
}

// Subscribe attaches s, first replaying every entry seen so far (and a
// final call if already complete), then delivering future entries live.
// The replay and the attach happen atomically under the Result's lock, so
// no entry or completion racing this call can be missed or duplicated.
func (r *Result) Subscribe(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.OnEntry != nil {
		for _, e := range r.entries {
			s.OnEntry(e)
		}
	}
	if r.done {
		if s.OnFinal != nil {
			s.OnFinal(r.finalErr)
		}
		return
	}
	r.observers = append(r.observers, s)
}

// Wait blocks until the Result completes or ctx is cancelled, returning
// every entry collected and the terminal error (nil on ordinary success).
func (r *Result) Wait(ctx context.Context) ([]Entry, error) {
	done := make(chan struct{})
	go func() {
		r.mu.Lock()
		for !r.done {
			r.cond.Wait()
		}
		r.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return append([]Entry(nil), r.entries...), r.finalErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Entries returns every entry collected so far without blocking.
func (r *Result) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}
