package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/meshkv/meshkv/dispatch"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/streaming"
	"github.com/meshkv/meshkv/wire"
)

// ReadDataRange issues one streaming read to group's owner of r.Start and
// hands each chunk of the reply to the caller. Only r.Start travels in the
// request (as its key); r.End is not sent, so where the stream stops is up
// to the server. onRecord is invoked once per chunk streamed back, with the
// key taken from the first key.Size bytes of that chunk's json part (zero
// when the chunk carries less json than that) and final set on the last
// chunk.
func (s *Session) ReadDataRange(ctx context.Context, r key.Range, group key.GroupID, onRecord func(k key.Key, data []byte, final bool) error) error {
	dest, ok := s.dispatcher.Routing.Locate(group, r.Start)
	if !ok {
		return errs.New(errs.NoRoute, "no route for range start")
	}
	conn, err := s.dispatcher.Pool.Dial(dest)
	if err != nil {
		return errors.Wrap(err, "session: read_data_range")
	}
	defer conn.Close()

	req := wire.ReadRequest{
		Cmd: wire.Header{
			KeyID:   r.Start,
			Group:   group,
			Flags:   s.CFlags,
			Opcode:  wire.OpDataRange,
			TraceID: s.traceID(),
		},
		IOFlags: s.IOFlags,
	}
	return streaming.Read(conn, req, s.deadline(), func(jsonChunk, dataChunk []byte, final bool) error {
		var k key.Key
		if len(jsonChunk) >= key.Size {
			copy(k[:], jsonChunk[:key.Size])
		}
		return onRecord(k, dataChunk, final)
	})
}

// RemoveDataRange removes every record whose key falls in r, within group
// (spec §4.1's remove_data_range), dispatched to whichever node currently
// owns the range's start key. The CHECKSUM/NOCACHE flags of s.CFlags apply
// the same way they do to a single Remove.
func (s *Session) RemoveDataRange(r key.Range, group key.GroupID) error {
	c := s.control(wire.OpDataRange, r.Start, r.Marshal())
	c.Group = group
	result := dispatch.ToSingleState(s.dispatcher, c, nil)
	_, err := result.Wait(context.Background())
	return err
}
