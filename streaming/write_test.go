package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/transport"
	"github.com/meshkv/meshkv/wire"
)

// fakeWriteRPCServer reads a WriteRequestHeader then every chunk until one
// arrives without FlagMore, recording what it saw before replying.
type fakeWriteRPCServer struct {
	conn *transport.Conn

	chunkCount   int
	jsonSeen     []byte
	dataSeen     []byte
	RejectStatus int32
}

func (s *fakeWriteRPCServer) run(t *testing.T) {
	header, body, err := s.conn.ReadMessage(time.Time{})
	require.NoError(t, err)
	whdr, err := wire.UnmarshalWriteRequestHeader(append(header.Marshal(), body...))
	require.NoError(t, err)
	jsonRemaining := int(whdr.JSONSize)

	for {
		header, body, err := s.conn.ReadMessage(time.Time{})
		require.NoError(t, err)
		s.chunkCount++

		take := jsonRemaining
		if take > len(body) {
			take = len(body)
		}
		s.jsonSeen = append(s.jsonSeen, body[:take]...)
		s.dataSeen = append(s.dataSeen, body[take:]...)
		jsonRemaining -= take

		if !header.Flags.Has(wire.FlagMore) {
			break
		}
	}

	resp := wire.LookupResponse{
		Cmd:      wire.Header{Opcode: wire.OpWriteCommit, Status: s.RejectStatus},
		Path:     "/test/path",
		DataSize: uint64(len(s.dataSeen)),
	}
	full := resp.Marshal()
	resp.Cmd.BodySize = uint64(len(full) - wire.HeaderSize)
	require.NoError(t, s.conn.WriteMessage(time.Time{}, resp.Cmd, full[wire.HeaderSize:]))
}

// chunkSourceFromSlices returns a ChunkSource that hands out a single
// chunk carrying all of json and data, marked final immediately.
func chunkSourceFromSlices(jsonPart, dataPart []byte) ChunkSource {
	sent := false
	return func() ([]byte, []byte, bool, error) {
		if sent {
			return nil, nil, true, nil
		}
		sent = true
		return jsonPart, dataPart, true, nil
	}
}

func TestWriteSingleChunkRoundTrip(t *testing.T) {
	client, server := newStreamingPipe(t)
	fs := &fakeWriteRPCServer{conn: server}

	done := make(chan struct{})
	go func() { fs.run(t); close(done) }()

	jsonPart := []byte(`{"a":1}`)
	dataPart := []byte("hello world")
	header := wire.WriteRequestHeader{
		Cmd:      wire.Header{Opcode: wire.OpWritePlain},
		JSONSize: uint64(len(jsonPart)),
		DataSize: uint64(len(dataPart)),
	}

	resp, err := Write(client, header, time.Time{}, chunkSourceFromSlices(jsonPart, dataPart))
	require.NoError(t, err)
	<-done

	require.Equal(t, 1, fs.chunkCount)
	require.Equal(t, jsonPart, fs.jsonSeen)
	require.Equal(t, dataPart, fs.dataSeen)
	require.Equal(t, "/test/path", resp.Path)
}

// TestWriteStreamsMultipleChunksBeforeFinal verifies chunks before the
// final one carry FlagMore and the final one does not.
func TestWriteStreamsMultipleChunksBeforeFinal(t *testing.T) {
	client, server := newStreamingPipe(t)
	fs := &fakeWriteRPCServer{conn: server}

	done := make(chan struct{})
	go func() { fs.run(t); close(done) }()

	dataPart := []byte("0123456789")
	chunks := [][]byte{dataPart[:4], dataPart[4:8], dataPart[8:]}
	i := 0
	next := func() ([]byte, []byte, bool, error) {
		c := chunks[i]
		i++
		return nil, c, i == len(chunks), nil
	}

	header := wire.WriteRequestHeader{
		Cmd:      wire.Header{Opcode: wire.OpWritePlain},
		DataSize: uint64(len(dataPart)),
	}

	_, err := Write(client, header, time.Time{}, next)
	require.NoError(t, err)
	<-done

	require.Equal(t, 3, fs.chunkCount)
	require.Equal(t, dataPart, fs.dataSeen)
}

// TestWriteSurfacesRemoteRejectStatus verifies a non-zero LookupResponse
// status is translated into an errs.Error rather than returned as a
// successful response.
func TestWriteSurfacesRemoteRejectStatus(t *testing.T) {
	client, server := newStreamingPipe(t)
	fs := &fakeWriteRPCServer{conn: server, RejectStatus: int32(-errs.ChecksumMismatch)}

	done := make(chan struct{})
	go func() { fs.run(t); close(done) }()

	header := wire.WriteRequestHeader{Cmd: wire.Header{Opcode: wire.OpWritePlain}}
	_, err := Write(client, header, time.Time{}, chunkSourceFromSlices(nil, nil))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ChecksumMismatch))
	<-done
}

// TestWriteChunkSourceErrorAbortsWithoutSendingReply verifies a
// ChunkSource failure short-circuits before any reply is awaited.
func TestWriteChunkSourceErrorAbortsWithoutSendingReply(t *testing.T) {
	client, server := newStreamingPipe(t)
	t.Cleanup(func() { server.Close() })

	next := func() ([]byte, []byte, bool, error) {
		return nil, nil, false, errWriteAborted
	}

	header := wire.WriteRequestHeader{Cmd: wire.Header{Opcode: wire.OpWritePlain}}

	// Drain the first header message so Write's initial send doesn't block
	// forever on net.Pipe's synchronous handoff.
	go server.ReadMessage(time.Time{})

	_, err := Write(client, header, time.Time{}, next)
	require.Error(t, err)
	require.ErrorIs(t, err, errWriteAborted)
}

var errWriteAborted = &fakeAbortError{}

type fakeAbortError struct{}

func (*fakeAbortError) Error() string { return "chunk source aborted" }
