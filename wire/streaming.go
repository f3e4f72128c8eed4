package wire

import (
	"encoding/binary"
	"fmt"
)

// The streaming RPC messages of spec §6. Structurally defined; any
// equivalent schema suffices per the spec, so (like the teacher's own
// rpc/dataconn frame layer) they are encoded as flat little-endian binary
// records rather than through a generic serialization library: the spec
// already hands us exact field layouts and the teacher never reaches for
// protobuf below the dataconn/frameconn layer either.

// ReadRequest is the single request message of the chunked-read RPC.
type ReadRequest struct {
	Cmd        Header
	IOFlags    Flags
	ReadFlags  Flags
	DataOffset uint64
	DataSize   uint64
}

func (r ReadRequest) Marshal() []byte {
	buf := make([]byte, HeaderSize+32)
	copy(buf, r.Cmd.Marshal())
	o := HeaderSize
	binary.LittleEndian.PutUint64(buf[o:o+8], uint64(r.IOFlags))
	binary.LittleEndian.PutUint64(buf[o+8:o+16], uint64(r.ReadFlags))
	binary.LittleEndian.PutUint64(buf[o+16:o+24], r.DataOffset)
	binary.LittleEndian.PutUint64(buf[o+24:o+32], r.DataSize)
	return buf
}

func UnmarshalReadRequest(buf []byte) (ReadRequest, error) {
	if len(buf) != HeaderSize+32 {
		return ReadRequest{}, fmt.Errorf("wire: bad ReadRequest length %d", len(buf))
	}
	cmd, err := Unmarshal(buf[:HeaderSize])
	if err != nil {
		return ReadRequest{}, err
	}
	o := HeaderSize
	return ReadRequest{
		Cmd:        cmd,
		IOFlags:    Flags(binary.LittleEndian.Uint64(buf[o : o+8])),
		ReadFlags:  Flags(binary.LittleEndian.Uint64(buf[o+8 : o+16])),
		DataOffset: binary.LittleEndian.Uint64(buf[o+16 : o+24]),
		DataSize:   binary.LittleEndian.Uint64(buf[o+24 : o+32]),
	}, nil
}

// ReadResponseHeader is present exactly on the first message of a chunked
// read response (spec §6).
type ReadResponseHeader struct {
	Cmd             Header
	RecordFlags     Flags
	UserFlags       uint64
	JSONTimestamp   uint64
	JSONSize        uint64
	JSONCapacity    uint64
	ReadJSONSize    uint64
	DataTimestamp   uint64
	DataSize        uint64
	ReadDataOffset  uint64
	ReadDataSize    uint64
}

const readResponseHeaderBodySize = 8*10

func (h ReadResponseHeader) Marshal() []byte {
	buf := make([]byte, HeaderSize+readResponseHeaderBodySize)
	copy(buf, h.Cmd.Marshal())
	o := HeaderSize
	vals := []uint64{
		uint64(h.RecordFlags), h.UserFlags, h.JSONTimestamp, h.JSONSize, h.JSONCapacity,
		h.ReadJSONSize, h.DataTimestamp, h.DataSize, h.ReadDataOffset, h.ReadDataSize,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[o+i*8:o+i*8+8], v)
	}
	return buf
}

func UnmarshalReadResponseHeader(buf []byte) (ReadResponseHeader, error) {
	if len(buf) != HeaderSize+readResponseHeaderBodySize {
		return ReadResponseHeader{}, fmt.Errorf("wire: bad ReadResponseHeader length %d", len(buf))
	}
	cmd, err := Unmarshal(buf[:HeaderSize])
	if err != nil {
		return ReadResponseHeader{}, err
	}
	o := HeaderSize
	get := func(i int) uint64 { return binary.LittleEndian.Uint64(buf[o+i*8 : o+i*8+8]) }
	return ReadResponseHeader{
		Cmd:            cmd,
		RecordFlags:    Flags(get(0)),
		UserFlags:      get(1),
		JSONTimestamp:  get(2),
		JSONSize:       get(3),
		JSONCapacity:   get(4),
		ReadJSONSize:   get(5),
		DataTimestamp:  get(6),
		DataSize:       get(7),
		ReadDataOffset: get(8),
		ReadDataSize:   get(9),
	}, nil
}

// WriteRequestHeader is present on the first message of a chunked write
// request (spec §6).
type WriteRequestHeader struct {
	Cmd            Header
	IOFlags        Flags
	UserFlags      uint64
	JSONTimestamp  uint64
	JSONSize       uint64
	JSONCapacity   uint64
	DataTimestamp  uint64
	DataOffset     uint64
	DataSize       uint64
	DataCapacity   uint64
	DataCommitSize uint64
	CacheLifetime  uint64

	// ExpectedChecksum is the remote's current data checksum a CHECKSUM
	// (CAS) write must match before it is allowed to proceed (spec §4.1's
	// write_cas). Meaningless, and left zero, on a plain write.
	ExpectedChecksum uint64
}

const writeRequestHeaderBodySize = 8 * 12

func (h WriteRequestHeader) Marshal() []byte {
	buf := make([]byte, HeaderSize+writeRequestHeaderBodySize)
	copy(buf, h.Cmd.Marshal())
	o := HeaderSize
	vals := []uint64{
		uint64(h.IOFlags), h.UserFlags, h.JSONTimestamp, h.JSONSize, h.JSONCapacity,
		h.DataTimestamp, h.DataOffset, h.DataSize, h.DataCapacity, h.DataCommitSize, h.CacheLifetime,
		h.ExpectedChecksum,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[o+i*8:o+i*8+8], v)
	}
	return buf
}

func UnmarshalWriteRequestHeader(buf []byte) (WriteRequestHeader, error) {
	if len(buf) != HeaderSize+writeRequestHeaderBodySize {
		return WriteRequestHeader{}, fmt.Errorf("wire: bad WriteRequestHeader length %d", len(buf))
	}
	cmd, err := Unmarshal(buf[:HeaderSize])
	if err != nil {
		return WriteRequestHeader{}, err
	}
	o := HeaderSize
	get := func(i int) uint64 { return binary.LittleEndian.Uint64(buf[o+i*8 : o+i*8+8]) }
	return WriteRequestHeader{
		Cmd:              cmd,
		IOFlags:          Flags(get(0)),
		UserFlags:        get(1),
		JSONTimestamp:    get(2),
		JSONSize:         get(3),
		JSONCapacity:     get(4),
		DataTimestamp:    get(5),
		DataOffset:       get(6),
		DataSize:         get(7),
		DataCapacity:     get(8),
		DataCommitSize:   get(9),
		CacheLifetime:    get(10),
		ExpectedChecksum: get(11),
	}, nil
}

// LookupResponse is the structured reply body to a lookup/write-prepare/
// write-plain/write-commit command.
type LookupResponse struct {
	Cmd           Header
	RecordFlags   Flags
	UserFlags     uint64
	Path          string
	JSONTimestamp uint64
	JSONOffset    uint64
	JSONSize      uint64
	JSONCapacity  uint64
	JSONChecksum  uint64
	DataTimestamp uint64
	DataOffset    uint64
	DataSize      uint64
	DataChecksum  uint64
}

func (r LookupResponse) Marshal() []byte {
	pathBytes := []byte(r.Path)
	buf := make([]byte, HeaderSize+8+4+len(pathBytes)+8*10)
	copy(buf, r.Cmd.Marshal())
	o := HeaderSize
	binary.LittleEndian.PutUint64(buf[o:o+8], uint64(r.RecordFlags))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:o+4], uint32(len(pathBytes)))
	o += 4
	copy(buf[o:o+len(pathBytes)], pathBytes)
	o += len(pathBytes)
	vals := []uint64{
		r.UserFlags, r.JSONTimestamp, r.JSONOffset, r.JSONSize, r.JSONCapacity,
		r.JSONChecksum, r.DataTimestamp, r.DataOffset, r.DataSize, r.DataChecksum,
	}
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[o+i*8:o+i*8+8], v)
	}
	return buf
}

func UnmarshalLookupResponse(buf []byte) (LookupResponse, error) {
	if len(buf) < HeaderSize+8+4 {
		return LookupResponse{}, fmt.Errorf("wire: LookupResponse too short")
	}
	cmd, err := Unmarshal(buf[:HeaderSize])
	if err != nil {
		return LookupResponse{}, err
	}
	o := HeaderSize
	recordFlags := Flags(binary.LittleEndian.Uint64(buf[o : o+8]))
	o += 8
	pathLen := int(binary.LittleEndian.Uint32(buf[o : o+4]))
	o += 4
	if len(buf) != o+pathLen+8*10 {
		return LookupResponse{}, fmt.Errorf("wire: LookupResponse length mismatch")
	}
	path := string(buf[o : o+pathLen])
	o += pathLen
	get := func(i int) uint64 { return binary.LittleEndian.Uint64(buf[o+i*8 : o+i*8+8]) }
	return LookupResponse{
		Cmd:           cmd,
		RecordFlags:   recordFlags,
		Path:          path,
		UserFlags:     get(0),
		JSONTimestamp: get(1),
		JSONOffset:    get(2),
		JSONSize:      get(3),
		JSONCapacity:  get(4),
		JSONChecksum:  get(5),
		DataTimestamp: get(6),
		DataOffset:    get(7),
		DataSize:      get(8),
		DataChecksum:  get(9),
	}, nil
}
