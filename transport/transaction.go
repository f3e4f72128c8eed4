package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// state mirrors the Created/Live/Destroyed lifecycle named for
// transactions: a transaction is Created when registered in the table,
// Live once its request has been written to the wire, and Destroyed once
// its completion callback has run exactly once.
type state int32

const (
	stateCreated state = iota
	stateLive
	stateDestroyed
)

// ReplyFunc is invoked for every reply belonging to a transaction. final
// reports whether this is the last reply expected (no FlagMore set, or a
// synthesized timeout/cancellation).
type ReplyFunc func(header wire.Header, body []byte, final bool)

// Transaction tracks one outstanding request awaiting one or more replies
// from a single destination node.
type Transaction struct {
	ID          uint64
	Destination key.NodeAddress
	Deadline    time.Time
	Opcode      wire.Opcode
	Reply       ReplyFunc

	mu    sync.Mutex
	state state
}

// MarkLive transitions Created -> Live. Called once the request has been
// written to the destination connection.
func (t *Transaction) MarkLive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateCreated {
		t.state = stateLive
	}
}

// deliver invokes Reply at most once with final=true; every later call
// after the terminal one is dropped rather than re-invoking the callback.
// It reports whether this call was the one that ran Reply.
func (t *Transaction) deliver(header wire.Header, body []byte, final bool) bool {
	t.mu.Lock()
	if t.state == stateDestroyed {
		t.mu.Unlock()
		return false
	}
	if final {
		t.state = stateDestroyed
	}
	t.mu.Unlock()

	t.Reply(header, body, final)
	return true
}

// IDGenerator produces process-unique transaction ids, grounded on the
// teacher's request-id counter pattern (an atomic monotonic counter rather
// than a random id, since collisions within a single table would silently
// misroute replies).
type IDGenerator struct {
	next uint64
}

func (g *IDGenerator) Next() uint64 {
	return atomic.AddUint64(&g.next, 1)
}
