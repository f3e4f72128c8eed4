// Package streaming implements the chunked, server-streaming Read and
// client-streaming Write state machines. Both are adapted from the
// teacher's rpc/dataconn client/server pair (send header, then stream
// payload chunks, watching for a FIN condition) but driven by this
// module's own wire types instead of protobuf + a ZFS byte stream. Every
// wire read/write the two state machines issue runs through
// transport.Submit, so the tag-driven completion-queue worker pool of
// spec §4.6/§5 is what actually advances each chunk rather than the
// caller's own goroutine blocking on the socket directly.
package streaming

import (
	"fmt"
	"time"

	"github.com/meshkv/meshkv/transport"
	"github.com/meshkv/meshkv/wire"
)

// ReadState is one of the three states a chunked read request passes
// through on the client side.
type ReadState int

const (
	ReadWaitingHeader ReadState = iota
	ReadPartial
	ReadComplete
)

// ChunkFunc receives one payload chunk of a streamed read. final is set on
// the last chunk (i.e. the chunk after which the completion predicate
// holds), so callers can release buffers or close files without waiting
// for a separate terminal notification.
type ChunkFunc func(jsonChunk, dataChunk []byte, final bool) error

// Read drives a chunked read to completion over conn, given an
// already-registered request header and a deadline for the whole exchange.
// It blocks until the read completes or the connection/deadline fails.
//
// The completion predicate is (json_offset == json_size) AND
// (data_offset == data_size): both halves of the record must be fully
// delivered, not just one of them re-checked twice.
func Read(conn *transport.Conn, req wire.ReadRequest, deadline time.Time, onChunk ChunkFunc) error {
	reqBody := req.Marshal()[wire.HeaderSize:]
	reqHeader := req.Cmd
	reqHeader.BodySize = uint64(len(reqBody))
	if err := transport.Submit(func() error { return conn.WriteMessage(deadline, reqHeader, reqBody) }); err != nil {
		return fmt.Errorf("streaming: write ReadRequest: %w", err)
	}

	state := ReadWaitingHeader
	var respHeader wire.ReadResponseHeader
	var jsonOffset, dataOffset uint64

	for state != ReadComplete {
		var header wire.Header
		var body []byte
		err := transport.Submit(func() error {
			var ioErr error
			header, body, ioErr = conn.ReadMessage(deadline)
			return ioErr
		})
		if err != nil {
			return fmt.Errorf("streaming: read reply: %w", err)
		}

		switch state {
		case ReadWaitingHeader:
			respHeader, err = wire.UnmarshalReadResponseHeader(append(header.Marshal(), body...))
			if err != nil {
				return fmt.Errorf("streaming: decode ReadResponseHeader: %w", err)
			}
			state = ReadPartial
			if respHeader.ReadJSONSize == 0 && respHeader.ReadDataSize == 0 {
				state = ReadComplete
				return onChunk(nil, nil, true)
			}
		case ReadPartial:
			jsonChunkLen, dataChunkLen, jsonChunk, dataChunk, err := splitChunk(body, respHeader, jsonOffset, dataOffset)
			if err != nil {
				return err
			}
			jsonOffset += uint64(jsonChunkLen)
			dataOffset += uint64(dataChunkLen)

			final := jsonOffset == respHeader.ReadJSONSize && dataOffset == respHeader.ReadDataSize
			if !header.Flags.Has(wire.FlagMore) && !final {
				return fmt.Errorf("streaming: server signalled completion but only delivered %d/%d json, %d/%d data",
					jsonOffset, respHeader.ReadJSONSize, dataOffset, respHeader.ReadDataSize)
			}
			if err := onChunk(jsonChunk, dataChunk, final); err != nil {
				return err
			}
			if final {
				state = ReadComplete
			}
		}
	}
	return nil
}

// splitChunk divides a chunk body into its JSON and data halves, given how
// much of each has already been delivered and the header's declared
// totals. Chunks always deliver any remaining JSON before any data, the
// same ordering the wire header's ReadJSONSize/ReadDataSize imply.
func splitChunk(body []byte, h wire.ReadResponseHeader, jsonOffset, dataOffset uint64) (jsonLen, dataLen int, jsonChunk, dataChunk []byte, err error) {
	remainingJSON := int(h.ReadJSONSize - jsonOffset)
	if remainingJSON < 0 {
		return 0, 0, nil, nil, fmt.Errorf("streaming: json offset overruns declared size")
	}
	take := remainingJSON
	if take > len(body) {
		take = len(body)
	}
	jsonChunk = body[:take]
	dataChunk = body[take:]
	return len(jsonChunk), len(dataChunk), jsonChunk, dataChunk, nil
}
