package dispatch

import (
	"sync"

	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// BulkKeyResult is one key's outcome inside a per-node bulk reply body.
type BulkKeyResult struct {
	Key    key.Key
	Status int32
	Data   interface{}
}

// BulkDecoder parses a per-node bulk reply body into the per-key results
// it carries. Keys from the sub-request that don't appear in the returned
// slice are synthesized by bulkTracker so every input key yields exactly
// one entry.
type BulkDecoder func(body []byte) ([]BulkKeyResult, error)

// bulkTracker is KeyPartitioned's per-node completion unit: it owns the
// responded[] bitset of spec §3's bulk-remove plan, generalized to every
// key-partitioned bulk operation. It is the transport.ReplyFunc bound to
// exactly one sub-request's transaction.
type bulkTracker struct {
	mu        sync.Mutex
	keys      []BulkItem
	groups    map[key.Key]key.GroupID
	responded map[key.Key]bool
	decode    BulkDecoder
	result    *asyncresult.Result
	onDone    func()
	done      bool
}

func newBulkTracker(keys []BulkItem, decode BulkDecoder, result *asyncresult.Result, onDone func()) *bulkTracker {
	groups := make(map[key.Key]key.GroupID, len(keys))
	for _, item := range keys {
		groups[item.Key] = item.Group
	}
	return &bulkTracker{
		keys:      keys,
		groups:    groups,
		responded: make(map[key.Key]bool, len(keys)),
		decode:    decode,
		result:    result,
		onDone:    onDone,
	}
}

// routed builds the key.Routed identifier an entry's Source carries,
// disambiguating which of a bulk operation's configured groups this key's
// outcome belongs to (a bulk call fanned out across several groups sends
// this node the same key under more than one bulkTracker).
func (t *bulkTracker) routed(k key.Key) key.Routed {
	return key.Routed{Key: k, Group: t.groups[k]}
}

// reply is the transport.ReplyFunc for this sub-request's transaction.
func (t *bulkTracker) reply(header wire.Header, body []byte, final bool) {
	t.deliver(header, body)
	if final {
		t.finish(header)
	}
}

// deliver decodes body (if a decoder was supplied) and emits one entry per
// key it covers, marking each as responded so finish doesn't synthesize a
// duplicate.
func (t *bulkTracker) deliver(header wire.Header, body []byte) {
	if t.decode == nil {
		return
	}
	results, err := t.decode(body)
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range results {
		if t.responded[r.Key] {
			continue
		}
		t.responded[r.Key] = true
		var entryErr error
		if r.Status != 0 {
			entryErr = errs.New(errs.Code(-r.Status), "remote returned non-zero status")
		}
		t.result.Process(asyncresult.Entry{Source: t.routed(r.Key), Data: r.Data, Err: entryErr})
	}
}

// finish synthesizes a terminal entry for every key this sub-request's
// reply never covered, using the sub-request's own terminal status as the
// synthetic error (NotFound when that status is 0), then releases the
// completion guard exactly once.
func (t *bulkTracker) finish(header wire.Header) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	var synthesizedErr error
	if header.Status != 0 {
		synthesizedErr = errs.New(errs.Code(-header.Status), "remote returned non-zero status")
	} else {
		synthesizedErr = errs.New(errs.NotFound, "key missing from bulk reply")
	}
	missing := make([]key.Key, 0, len(t.keys))
	for _, item := range t.keys {
		if !t.responded[item.Key] {
			missing = append(missing, item.Key)
		}
	}
	t.mu.Unlock()

	for _, k := range missing {
		t.result.Process(asyncresult.Entry{Source: t.routed(k), Err: synthesizedErr})
	}
	t.onDone()
}

// fail is used when the sub-request's send never reached the wire at all
// (no transaction was ever registered, so no reply will ever arrive): it
// synthesizes every key's entry from err directly.
func (t *bulkTracker) fail(err error) {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	keys := make([]key.Key, len(t.keys))
	for i, item := range t.keys {
		keys[i] = item.Key
	}
	t.mu.Unlock()

	for _, k := range keys {
		t.result.Process(asyncresult.Entry{Source: t.routed(k), Err: err})
	}
	t.onDone()
}
