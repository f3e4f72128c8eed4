// Package wire implements the fixed-layout command header and the
// streaming RPC message framing described in spec §6. No serialization
// library is used for the header: its byte layout is mandated exactly, so
// it is encoded directly with encoding/binary the way the teacher's
// rpc/dataconn/frameconn.FrameHeader encodes its own small fixed header.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/meshkv/meshkv/key"
)

// HeaderSize is the fixed wire size of a Header, per spec §6.
const HeaderSize = 112

// Flag is a single bit in the command flag bitset (spec §6).
type Flag uint64

const (
	FlagNeedAck         Flag = 1 << 0
	FlagReply           Flag = 1 << 1
	FlagMore            Flag = 1 << 2
	FlagDirect          Flag = 1 << 3
	FlagDirectBackend   Flag = 1 << 4
	FlagNoLock          Flag = 1 << 5
	FlagChecksum        Flag = 1 << 6
	FlagNoCache         Flag = 1 << 7
	FlagNoQueueTimeout  Flag = 1 << 8
	FlagTraceBit        Flag = 1 << 31
)

// Flags is the bitset carried in a command header.
type Flags uint64

func (f Flags) Has(bit Flag) bool { return f&Flags(bit) != 0 }
func (f Flags) With(bit Flag) Flags { return f | Flags(bit) }
func (f Flags) Without(bit Flag) Flags { return f &^ Flags(bit) }

// Opcode identifies the command carried by a Header.
//
//go:generate enumer -type=Opcode -output=opcode_string.go
type Opcode uint32

const (
	OpLookup Opcode = iota + 1
	OpRead
	OpWritePrepare
	OpWritePlain
	OpWriteCommit
	OpRemove
	OpBulkRead
	OpBulkWrite
	OpBulkRemove
	OpIteratorStart
	OpIteratorPause
	OpIteratorContinue
	OpIteratorCancel
	OpStatLog
	OpUpdateStatus
	OpDataRange
)

// Header is the fixed 64-byte-plus-extension command header of spec §6.
// Multi-byte fields are little-endian, per spec.
type Header struct {
	KeyID         key.Key
	Group         key.GroupID
	Status        int32
	Backend       key.BackendID
	TraceID       uint32
	Flags         Flags
	TransactionID uint64
	BodySize      uint64
	Opcode        Opcode
}

// Marshal encodes h into its wire representation.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:64], h.KeyID[:])
	binary.LittleEndian.PutUint32(buf[64:68], uint32(h.Group))
	binary.LittleEndian.PutUint32(buf[68:72], uint32(h.Status))
	binary.LittleEndian.PutUint32(buf[72:76], uint32(h.Backend))
	binary.LittleEndian.PutUint32(buf[76:80], h.TraceID)
	binary.LittleEndian.PutUint64(buf[80:88], uint64(h.Flags))
	binary.LittleEndian.PutUint64(buf[88:96], h.TransactionID)
	binary.LittleEndian.PutUint64(buf[96:104], h.BodySize)
	binary.LittleEndian.PutUint32(buf[104:108], uint32(h.Opcode))
	// buf[108:112] reserved, left zero
	return buf
}

// Unmarshal decodes a Header from its wire representation.
func Unmarshal(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	var h Header
	copy(h.KeyID[:], buf[0:64])
	h.Group = key.GroupID(binary.LittleEndian.Uint32(buf[64:68]))
	h.Status = int32(binary.LittleEndian.Uint32(buf[68:72]))
	h.Backend = key.BackendID(binary.LittleEndian.Uint32(buf[72:76]))
	h.TraceID = binary.LittleEndian.Uint32(buf[76:80])
	h.Flags = Flags(binary.LittleEndian.Uint64(buf[80:88]))
	h.TransactionID = binary.LittleEndian.Uint64(buf[88:96])
	h.BodySize = binary.LittleEndian.Uint64(buf[96:104])
	h.Opcode = Opcode(binary.LittleEndian.Uint32(buf[104:108]))
	return h, nil
}
