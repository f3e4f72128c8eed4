// Package handler implements the reply sink that sits between the
// transport layer and an asyncresult.Result: it is the thing a
// transport.Transaction's ReplyFunc actually points at.
package handler

import (
	"sync/atomic"

	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// BasicHandler receives every reply for the transactions a single dispatch
// call issued and turns them into asyncresult.Entry values on a shared
// Result. It is built around the "+1 guard" trick used to avoid a race
// between "dispatch is still issuing sends" and "the last reply just
// arrived": the handler's internal target is always (number of sends
// issued so far) + 1, and dispatch itself counts as one more unit of work
// that completes only when it finishes issuing every send. That way a
// handler can never see its count reach target while dispatch might still
// be about to issue one more send.
type BasicHandler struct {
	result    *asyncresult.Result
	decode    func(wire.Header, []byte) (interface{}, error)
	remaining atomic.Int64 // starts at 1 for the dispatch-in-progress guard unit
}

// NewBasicHandler returns a handler bound to result. decode turns a raw
// reply header+body into the domain value an asyncresult.Entry should
// carry (e.g. a parsed LookupResponse); it may be nil if callers only need
// the header/error and no body decoding.
func NewBasicHandler(result *asyncresult.Result, decode func(wire.Header, []byte) (interface{}, error)) *BasicHandler {
	h := &BasicHandler{result: result, decode: decode}
	h.remaining.Store(1) // the dispatch-in-progress guard unit
	return h
}

// SendIssued must be called once per transaction dispatch actually sends,
// before DispatchDone. It increments the outstanding count so the guard
// unit added in NewBasicHandler never lets the handler observe completion
// prematurely.
func (h *BasicHandler) SendIssued() {
	h.remaining.Add(1)
}

// DispatchDone releases the guard unit added in NewBasicHandler. Call it
// exactly once, after every SendIssued call for this handler's dispatch
// has already happened. If dispatch issued zero sends (e.g. the routing
// table had no members for the group), this alone drives the handler, and
// therefore the Result, to completion.
func (h *BasicHandler) DispatchDone() {
	h.release()
}

// SendFailed releases the unit SendIssued reserved for a transaction that
// never made it onto the wire (e.g. the connection pool couldn't reach the
// destination) and therefore will never deliver a reply.
func (h *BasicHandler) SendFailed() {
	h.release()
}

// Reply is the transport.ReplyFunc this handler exposes; bind it to every
// transaction dispatch creates with SendIssued already having been called
// once for that transaction. Prefer ReplyFrom when the sending dispatch
// strategy knows the destination node, so entries carry it for callers
// that need to address a specific replica afterward (e.g. ReadLatest).
func (h *BasicHandler) Reply(header wire.Header, body []byte, final bool) {
	h.ReplyFrom(key.NodeAddress{}, header, body, final)
}

// ReplyFrom is Reply with the destination node address attached to the
// resulting Entry.
func (h *BasicHandler) ReplyFrom(addr key.NodeAddress, header wire.Header, body []byte, final bool) {
	var data interface{}
	var err error
	if header.Status != 0 {
		err = errs.New(errs.Code(-header.Status), "remote returned non-zero status")
	} else if h.decode != nil {
		data, err = h.decode(header, body)
	}
	h.result.Process(asyncresult.Entry{Source: header.Group, Addr: addr, Data: data, Err: err})
	if final {
		h.release()
	}
}

// ReplyFuncFrom binds addr into a transport.ReplyFunc closure suitable for
// transport.Transaction.Reply.
func (h *BasicHandler) ReplyFuncFrom(addr key.NodeAddress) func(wire.Header, []byte, bool) {
	return func(header wire.Header, body []byte, final bool) {
		h.ReplyFrom(addr, header, body, final)
	}
}

// release decrements the outstanding count and completes the underlying
// Result's expected total once it reaches zero, i.e. once dispatch is done
// issuing sends and every issued transaction has delivered its terminal
// reply.
func (h *BasicHandler) release() {
	if h.remaining.Add(-1) == 0 {
		h.result.SetTotal(len(h.result.Entries()))
	}
}
