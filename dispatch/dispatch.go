// Package dispatch translates one logical request into the concrete
// transactions that carry it to one or more nodes. Each strategy is
// grounded on the teacher pack's client send path (dKV's
// clientTransport.Send): register a transaction, write the framed request,
// enqueue its deadline, then let the handler collect replies, generalized
// from a single round-robin send into the five fan-out shapes the session
// facade needs.
package dispatch

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/handler"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/routing"
	"github.com/meshkv/meshkv/transport"
	"github.com/meshkv/meshkv/wire"
)

// Control is a prepared command: everything dispatch needs to build one or
// more wire messages, independent of which strategy sends it.
type Control struct {
	Opcode  wire.Opcode
	Flags   wire.Flags
	KeyID   key.Key
	Group   key.GroupID
	Backend key.BackendID
	Body    []byte
	Timeout time.Duration

	// Direct and Forward are the session-level address overrides of spec
	// §4.4: Direct forces a to-single-state send to that node regardless
	// of routing; Forward routes the whole operation through a proxy node
	// that runs its own dispatcher on the client's behalf.
	Direct  *key.NodeAddress
	Forward *key.NodeAddress
}

// Decoder turns a raw reply into the domain value an asyncresult.Entry
// carries. Every strategy accepts one so callers can parse e.g. a
// LookupResponse instead of getting raw bytes back.
type Decoder func(wire.Header, []byte) (interface{}, error)

// Dispatcher owns the shared infrastructure every strategy sends through:
// the routing table, the outstanding-transaction table, the connection
// pool and the deadline queue.
type Dispatcher struct {
	Routing     routing.Table
	Pool        *transport.Pool
	Transactions *transport.Table
	Deadlines   *transport.DeadlineQueue

	// Backends bounds per-(node,backend) concurrency for ToEachBackend
	// sends (spec §5). Nil means unbounded, the zero value a caller gets
	// by constructing a Dispatcher literal without setting it.
	Backends *BackendLimiter
}

// send registers one transaction to dest, writes header+body over the
// pooled connection, and enqueues its deadline. It returns nil once the
// transaction is live, or an error if the connection could not be reached
// or written to (in which case the transaction was removed again).
func (d *Dispatcher) send(dest key.NodeAddress, h *handler.BasicHandler, opcode wire.Opcode, flags wire.Flags, k key.Key, group key.GroupID, backend key.BackendID, body []byte, timeout time.Duration) error {
	// SendIssued is counted before the write, so a reply that arrives
	// before sendWithReply returns never releases a unit that was not yet
	// counted; a send that never reaches the wire gives that unit back via
	// SendFailed so the handler is not held open waiting for a reply that
	// will never arrive.
	h.SendIssued()
	if err := d.sendWithReply(dest, h.ReplyFuncFrom(dest), opcode, flags, k, group, backend, body, timeout); err != nil {
		h.SendFailed()
		return err
	}
	return nil
}

// sendWithReply is send's transport-level core, parameterized on the raw
// reply callback instead of a handler.BasicHandler so strategies that need
// their own per-transaction bookkeeping (KeyPartitioned's responded-key
// tracking) can register a transaction without going through the
// handler package at all.
func (d *Dispatcher) sendWithReply(dest key.NodeAddress, reply transport.ReplyFunc, opcode wire.Opcode, flags wire.Flags, k key.Key, group key.GroupID, backend key.BackendID, body []byte, timeout time.Duration) error {
	txn := &transport.Transaction{Destination: dest, Opcode: opcode, Reply: reply}
	if timeout > 0 {
		txn.Deadline = time.Now().Add(timeout)
	}
	id := d.Transactions.Register(txn)

	header := wire.Header{
		KeyID:         k,
		Group:         group,
		Backend:       backend,
		Flags:         flags,
		TransactionID: id,
		BodySize:      uint64(len(body)),
		Opcode:        opcode,
	}

	conn, err := d.Pool.Get(dest)
	if err != nil {
		d.Transactions.Remove(id)
		return err
	}

	var writeDeadline time.Time
	if timeout > 0 {
		writeDeadline = time.Now().Add(timeout)
	}
	if err := conn.WriteMessage(writeDeadline, header, body); err != nil {
		d.Transactions.Remove(id)
		return err
	}
	txn.MarkLive()
	d.Deadlines.Add(txn)
	return nil
}

func (d *Dispatcher) newHandler(decode Decoder) (*asyncresult.Result, *handler.BasicHandler) {
	result := asyncresult.New()
	return result, handler.NewBasicHandler(result, decode)
}

// ToSingleState resolves c to one node (c.Direct if set, otherwise routing
// on c.Group/c.KeyID) and sends one transaction.
func ToSingleState(d *Dispatcher, c Control, decode Decoder) *asyncresult.Result {
	result, h := d.newHandler(decode)

	dest, ok := resolveOne(d, c)
	if !ok {
		h.DispatchDone()
		result.Complete(errs.New(errs.NoRoute, "no route for key"))
		return result
	}

	if err := d.send(dest, h, c.Opcode, c.Flags, c.KeyID, c.Group, c.Backend, c.Body, c.Timeout); err != nil {
		h.DispatchDone()
		result.Complete(err)
		return result
	}
	h.DispatchDone()
	return result
}

// sendToBackend is send bounded by the dispatcher's per-(node,backend)
// BackendLimiter, if one is configured. The slot is held only across
// submission (queuing the write onto the connection), not the full
// request/reply round trip: it bounds how fast this dispatcher can fan
// writes out to a single backend, not how many of its replies may be
// outstanding at once, the same way a bounded channel buffer only slows
// producers rather than tracking consumers.
func (d *Dispatcher) sendToBackend(dest key.NodeAddress, backend key.BackendID, h *handler.BasicHandler, c Control) error {
	if d.Backends == nil {
		return d.send(dest, h, c.Opcode, c.Flags.With(wire.FlagDirectBackend), c.KeyID, c.Group, backend, c.Body, c.Timeout)
	}
	guard, err := d.Backends.Acquire(context.Background(), dest, backend)
	if err != nil {
		return err
	}
	defer guard.Release()
	return d.send(dest, h, c.Opcode, c.Flags.With(wire.FlagDirectBackend), c.KeyID, c.Group, backend, c.Body, c.Timeout)
}

func resolveOne(d *Dispatcher, c Control) (key.NodeAddress, bool) {
	if c.Direct != nil {
		return *c.Direct, true
	}
	if c.Forward != nil {
		return *c.Forward, true
	}
	return d.Routing.Locate(c.Group, c.KeyID)
}

// ToEachBackend expands c into one transaction per backend known on the
// resolved node, with the DIRECT_BACKEND flag forced so the receiving node
// does not re-route it.
func ToEachBackend(d *Dispatcher, c Control, backends []key.BackendID, decode Decoder) *asyncresult.Result {
	result, h := d.newHandler(decode)

	dest, ok := resolveOne(d, c)
	if !ok {
		h.DispatchDone()
		result.Complete(errs.New(errs.NoRoute, "no route for key"))
		return result
	}

	for _, backend := range backends {
		err := d.sendToBackend(dest, backend, h, c)
		if err != nil {
			result.Process(asyncresult.Entry{Source: backend, Err: err})
		}
	}
	h.DispatchDone()
	return result
}

// ToEachNode iterates every peer in the group's routing table except self,
// forcing the DIRECT flag so each receiving node handles the command
// itself instead of forwarding it again.
func ToEachNode(d *Dispatcher, c Control, self key.NodeAddress, decode Decoder) *asyncresult.Result {
	result, h := d.newHandler(decode)

	members := d.Routing.Members(c.Group)
	for _, node := range members {
		if node.Compare(self) == 0 {
			continue
		}
		if err := d.send(node, h, c.Opcode, c.Flags.With(wire.FlagDirect), c.KeyID, c.Group, c.Backend, c.Body, c.Timeout); err != nil {
			result.Process(asyncresult.Entry{Source: node, Err: err})
		}
	}
	h.DispatchDone()
	return result
}

// ToGroups sends one transaction per group in groups, each routed
// independently. Used for writes/removes/lookups that must reach every
// replica group the session is configured with.
func ToGroups(d *Dispatcher, c Control, groups []key.GroupID, decode Decoder) *asyncresult.Result {
	return toGroups(d, c, groups, decode, c.Flags)
}

// ToGroupsIO is like ToGroups but reserved for i/o-shaped transactions
// (read/write/bulk bodies) that must additionally respect per-group retry
// and ordering; dispatched identically here since ordering across distinct
// groups is not itself observable by callers (each group's reply is a
// distinct Entry), and retry is a caller-level concern layered on top of
// the returned Result.
func ToGroupsIO(d *Dispatcher, c Control, groups []key.GroupID, decode Decoder) *asyncresult.Result {
	return toGroups(d, c, groups, decode, c.Flags)
}

func toGroups(d *Dispatcher, c Control, groups []key.GroupID, decode Decoder, flags wire.Flags) *asyncresult.Result {
	result, h := d.newHandler(decode)

	for _, g := range groups {
		cc := c
		cc.Group = g
		dest, ok := resolveOne(d, cc)
		if !ok {
			result.Process(asyncresult.Entry{Source: g, Err: errs.New(errs.NoRoute, "no route for group")})
			continue
		}
		if err := d.send(dest, h, c.Opcode, flags, c.KeyID, g, c.Backend, c.Body, c.Timeout); err != nil {
			result.Process(asyncresult.Entry{Source: g, Err: err})
		}
	}
	h.DispatchDone()
	return result
}

// BulkItem is one key in a key-partitioned bulk operation.
type BulkItem struct {
	Key   key.Key
	Group key.GroupID
	Body  []byte
}

// EncodeBulk builds the per-node sub-request body for a key-partitioned
// send: the sorted local key list plus whatever per-key body the caller
// supplied, left to encode to its own format (bulk remove has no body,
// bulk write/read bodies are wire-encoded by the caller).
type EncodeBulk func(items []BulkItem) []byte

// KeyPartitioned partitions items by owning node under the routing table
// and emits one sub-request per node carrying that node's sorted sublist
// (spec §4.4, the bulk-remove completeness invariant of spec §8 S6). Keys
// without a route produce a synthetic NoRoute entry immediately, without
// waiting on any network round trip.
//
// Every input key is guaranteed exactly one entry (spec §8 invariant 5):
// a sub-request's reply body is decoded into per-key results by decode,
// and any key in that sub-request decode's result doesn't cover is filled
// in with a synthetic entry carrying the sub-request's terminal error (or
// NotFound if the sub-request otherwise succeeded) once that sub-request
// reaches its final reply. decode may be nil, in which case every key in
// a sub-request is synthesized straight from the terminal reply alone —
// the shape bulk-remove uses, since its wire reply carries no body.
func KeyPartitioned(d *Dispatcher, c Control, items []BulkItem, encode EncodeBulk, decode BulkDecoder) *asyncresult.Result {
	result := asyncresult.New()
	remaining := &completionGuard{}
	remaining.add(1) // dispatch-in-progress guard unit, mirrors handler.BasicHandler

	byNode := map[string][]BulkItem{}
	nodeOf := map[string]key.NodeAddress{}
	for _, item := range items {
		dest, ok := d.Routing.Locate(item.Group, item.Key)
		if !ok {
			result.Process(asyncresult.Entry{Source: key.Routed{Key: item.Key, Group: item.Group}, Err: errs.New(errs.NoRoute, "no route for key")})
			continue
		}
		id := dest.String()
		byNode[id] = append(byNode[id], item)
		nodeOf[id] = dest
	}

	nodeIDs := make([]string, 0, len(byNode))
	for id := range byNode {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	finish := func() {
		if remaining.release() {
			result.SetTotal(len(result.Entries()))
		}
	}

	for _, id := range nodeIDs {
		sub := byNode[id]
		sort.Slice(sub, func(i, j int) bool { return sub[i].Key.Compare(sub[j].Key) < 0 })
		body := encode(sub)

		remaining.add(1)
		tr := newBulkTracker(sub, decode, result, finish)
		if err := d.sendWithReply(nodeOf[id], tr.reply, c.Opcode, c.Flags, key.Key{}, c.Group, c.Backend, body, c.Timeout); err != nil {
			tr.fail(err)
		}
	}
	finish()
	return result
}

// completionGuard is the same "+1 guard" counter handler.BasicHandler uses,
// reimplemented here because KeyPartitioned's per-node completion unit is
// a bulkTracker rather than a single transaction reply.
type completionGuard struct {
	remaining atomic.Int64
}

func (g *completionGuard) add(n int64) { g.remaining.Add(n) }

// release decrements the guard and reports whether this call brought it to
// zero, i.e. every unit of outstanding work has now finished.
func (g *completionGuard) release() bool {
	return g.remaining.Add(-1) == 0
}
