// Package chunking holds the shared default chunk size the write path
// uses to size a plain data chunk. Actual chunk framing happens at the
// wire.Header level (streaming.Write carries a MORE flag per chunk), so
// this package is deliberately just the one constant rather than a
// standalone byte-stream framer.
package chunking

// ChunkBufSize is the default cap on a single write chunk's data payload,
// used by session.Write to split a large write into wire-sized pieces.
var ChunkBufSize uint32 = 32 * 1024
