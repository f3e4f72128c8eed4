package streaming

import (
	"fmt"
	"time"

	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/transport"
	"github.com/meshkv/meshkv/wire"
)

// WriteState is one of the three states a chunked write request passes
// through on the client side.
type WriteState int

const (
	WriteWaitingFirst WriteState = iota
	WriteWaitingNext
	WriteComplete
)

// ChunkSource supplies the next chunk of a streamed write. It returns
// final=true on the chunk that completes the record; an empty chunk with
// final=true is valid (a zero-length write).
type ChunkSource func() (jsonChunk, dataChunk []byte, final bool, err error)

// MaxChunkBody bounds a single write chunk's body (json plus data) at
// transport.MaxBodySize, the largest body Conn.WriteMessage accepts.
const MaxChunkBody = transport.MaxBodySize

// Write drives a chunked write to completion: it sends header on the first
// message (WriteWaitingFirst -> WriteWaitingNext), then streams chunks
// from next (WriteWaitingNext -> WriteWaitingNext, looping) until next
// reports final (-> WriteComplete), then reads the single LookupResponse
// reply.
func Write(conn *transport.Conn, header wire.WriteRequestHeader, deadline time.Time, next ChunkSource) (wire.LookupResponse, error) {
	state := WriteWaitingFirst

	firstBody := header.Marshal()[wire.HeaderSize:]
	firstHeader := withFlag(header.Cmd, wire.FlagMore)
	firstHeader.BodySize = uint64(len(firstBody))
	if err := transport.Submit(func() error { return conn.WriteMessage(deadline, firstHeader, firstBody) }); err != nil {
		return wire.LookupResponse{}, fmt.Errorf("streaming: write WriteRequestHeader: %w", err)
	}
	state = WriteWaitingNext

	for state == WriteWaitingNext {
		jsonChunk, dataChunk, final, err := next()
		if err != nil {
			return wire.LookupResponse{}, fmt.Errorf("streaming: chunk source: %w", err)
		}
		body := append(append([]byte{}, jsonChunk...), dataChunk...)
		if len(body) > MaxChunkBody {
			return wire.LookupResponse{}, fmt.Errorf("streaming: chunk of %d bytes exceeds max %d", len(body), MaxChunkBody)
		}

		flags := header.Cmd.Flags
		if !final {
			flags = flags.With(wire.FlagMore)
		} else {
			flags = flags.Without(wire.FlagMore)
		}
		chunkHeader := header.Cmd
		chunkHeader.Flags = flags
		chunkHeader.BodySize = uint64(len(body))

		if err := transport.Submit(func() error { return conn.WriteMessage(deadline, chunkHeader, body) }); err != nil {
			return wire.LookupResponse{}, fmt.Errorf("streaming: write chunk: %w", err)
		}
		if final {
			state = WriteComplete
		}
	}

	var replyHeader wire.Header
	var replyBody []byte
	err := transport.Submit(func() error {
		var ioErr error
		replyHeader, replyBody, ioErr = conn.ReadMessage(deadline)
		return ioErr
	})
	if err != nil {
		return wire.LookupResponse{}, fmt.Errorf("streaming: read LookupResponse: %w", err)
	}
	if replyHeader.Status != 0 {
		return wire.LookupResponse{}, errs.New(errs.Code(-replyHeader.Status), "remote rejected write")
	}
	return wire.UnmarshalLookupResponse(append(replyHeader.Marshal(), replyBody...))
}

func withFlag(h wire.Header, f wire.Flag) wire.Header {
	h.Flags = h.Flags.With(f)
	return h
}
