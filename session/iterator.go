package session

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/meshkv/meshkv/dispatch"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// IteratorHandle is the client-side half of the server-resident iterator
// state of spec §3: the (node, id) pair every iterator control call
// targets. Server-side state is one of active/paused/cancelled; this
// struct carries only what the client needs to address it.
type IteratorHandle struct {
	Node key.NodeAddress
	ID   uint64
}

func encodeIteratorID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeIteratorID(buf []byte) uint64 {
	if len(buf) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(buf)
}

// StartIterator requests a new iterator over r within group, directed at
// the node that currently owns r.Start, and returns the handle the server
// assigned it.
func (s *Session) StartIterator(ctx context.Context, r key.Range, group key.GroupID) (IteratorHandle, error) {
	dest, ok := s.dispatcher.Routing.Locate(group, r.Start)
	if !ok {
		return IteratorHandle{}, errors.New("session: start_iterator: no route for range start")
	}
	c := s.control(wire.OpIteratorStart, r.Start, r.Marshal())
	c.Group = group
	c.Direct = &dest
	result := dispatch.ToSingleState(s.dispatcher, c, decodeIteratorID32)
	entries, err := result.Wait(ctx)
	if err != nil {
		return IteratorHandle{}, errors.Wrap(err, "session: start_iterator")
	}
	for _, e := range entries {
		if e.Err == nil {
			if id, ok := e.Data.(uint64); ok {
				return IteratorHandle{Node: dest, ID: id}, nil
			}
		}
	}
	return IteratorHandle{}, errors.New("session: start_iterator: no iterator id in reply")
}

func decodeIteratorID32(header wire.Header, body []byte) (interface{}, error) {
	return decodeIteratorID(body), nil
}

// PauseIterator suspends h, leaving server-side state intact for a later
// ContinueIterator.
func (s *Session) PauseIterator(ctx context.Context, h IteratorHandle) error {
	return s.iteratorControl(ctx, wire.OpIteratorPause, h)
}

// ContinueIterator resumes a previously paused iterator.
func (s *Session) ContinueIterator(ctx context.Context, h IteratorHandle) error {
	return s.iteratorControl(ctx, wire.OpIteratorContinue, h)
}

// CancelIterator releases an iterator's server-side state permanently; it
// is itself an ordinary RPC, not a connection-level event (spec §5).
func (s *Session) CancelIterator(ctx context.Context, h IteratorHandle) error {
	return s.iteratorControl(ctx, wire.OpIteratorCancel, h)
}

func (s *Session) iteratorControl(ctx context.Context, opcode wire.Opcode, h IteratorHandle) error {
	c := s.control(opcode, key.Key{}, encodeIteratorID(h.ID))
	c.Direct = &h.Node
	result := dispatch.ToSingleState(s.dispatcher, c, nil)
	_, err := result.Wait(ctx)
	return errors.Wrapf(err, "session: iterator control %s", opcode)
}
