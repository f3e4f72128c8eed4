package session

import (
	"context"
	"encoding/binary"

	"github.com/meshkv/meshkv/aggregator"
	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/dispatch"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// BulkRead reads every key in keys, partitioned by owning node within each
// configured replica group (spec §3/§4.4's key-partitioned dispatch), and
// fanned out across every configured group the same way Write/Remove/Lookup
// are (spec §3/§4.1's replica-group model): one group's dial failure or
// missing route never keeps the other groups' bulk reads from proceeding.
func (s *Session) BulkRead(ctx context.Context, keys []key.Key) *asyncresult.Result {
	items := make([]dispatch.BulkItem, len(keys))
	for i, k := range keys {
		items[i] = dispatch.BulkItem{Key: k}
	}
	c := s.control(wire.OpBulkRead, key.Key{}, nil)
	result := s.bulkGroups(ctx, c, items, encodeKeyList, decodeBulkKeyedBlobs)
	return s.finish("bulk_read", result)
}

// BulkRemove removes every key in keys, maintaining the responded[]
// completeness guarantee of spec §3 (bulk-remove plan) and §8 invariant 5
// via dispatch.KeyPartitioned's immediate synthetic entries for unrouted
// keys combined with the deadline queue's synthesized TIMEDOUT entries for
// keys whose owning node never replies, fanned out across every configured
// group like BulkRead.
func (s *Session) BulkRemove(ctx context.Context, keys []key.Key) *asyncresult.Result {
	items := make([]dispatch.BulkItem, len(keys))
	for i, k := range keys {
		items[i] = dispatch.BulkItem{Key: k}
	}
	c := s.control(wire.OpBulkRemove, key.Key{}, nil)
	result := s.bulkGroups(ctx, c, items, encodeKeyList, decodeBulkKeyStatus)
	return s.finish("bulk_remove", result)
}

// KeyedBlob is one key/value pair in a BulkWrite call.
type KeyedBlob struct {
	Key  key.Key
	Data []byte
}

// BulkWrite writes every blob in blobs, partitioned by owning node and
// fanned out across every configured group like BulkRead.
func (s *Session) BulkWrite(ctx context.Context, blobs []KeyedBlob) *asyncresult.Result {
	items := make([]dispatch.BulkItem, len(blobs))
	for i, b := range blobs {
		items[i] = dispatch.BulkItem{Key: b.Key, Body: b.Data}
	}
	c := s.control(wire.OpBulkWrite, key.Key{}, nil)
	result := s.bulkGroups(ctx, c, items, encodeKeyedBlobs, decodeBulkKeyStatus)
	return s.finish("bulk_write", result)
}

// bulkGroups dispatches one dispatch.KeyPartitioned call per configured
// group (items re-stamped with that group's id) and fans the per-group
// results into one aggregate via aggregator.Combine, the same "one dispatch
// per group, combine the outcomes" shape writeGroups uses for chunked
// writes. A session with no configured groups falls back to group 0.
func (s *Session) bulkGroups(ctx context.Context, c dispatch.Control, items []dispatch.BulkItem, encode dispatch.EncodeBulk, decode dispatch.BulkDecoder) *asyncresult.Result {
	groups := s.Groups
	if len(groups) == 0 {
		groups = []key.GroupID{0}
	}
	results := make([]*asyncresult.Result, len(groups))
	for i, g := range groups {
		groupItems := make([]dispatch.BulkItem, len(items))
		for j, it := range items {
			it.Group = g
			groupItems[j] = it
		}
		gc := c
		gc.Group = g
		results[i] = dispatch.KeyPartitioned(s.dispatcher, gc, groupItems, encode, decode)
	}
	return aggregator.Combine(ctx, results...)
}

// encodeKeyList builds a sub-request body of sorted keys with no payload,
// for bulk read/remove.
func encodeKeyList(items []dispatch.BulkItem) []byte {
	buf := make([]byte, 4+len(items)*key.Size)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(items)))
	off := 4
	for _, it := range items {
		copy(buf[off:off+key.Size], it.Key[:])
		off += key.Size
	}
	return buf
}

// encodeKeyedBlobs builds a sub-request body of (key, length-prefixed
// blob) pairs, for bulk write.
func encodeKeyedBlobs(items []dispatch.BulkItem) []byte {
	size := 4
	for _, it := range items {
		size += key.Size + 4 + len(it.Body)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(items)))
	off := 4
	for _, it := range items {
		copy(buf[off:off+key.Size], it.Key[:])
		off += key.Size
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(it.Body)))
		off += 4
		copy(buf[off:off+len(it.Body)], it.Body)
		off += len(it.Body)
	}
	return buf
}

// decodeBulkKeyStatus parses a per-node bulk reply that carries only a
// status per key and no body, the shape bulk-remove and bulk-write replies
// use: count + (key, status)*count.
func decodeBulkKeyStatus(body []byte) ([]dispatch.BulkKeyResult, error) {
	if len(body) < 4 {
		return nil, errs.New(errs.Protocol, "short bulk reply")
	}
	n := binary.BigEndian.Uint32(body[:4])
	off := 4
	results := make([]dispatch.BulkKeyResult, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+key.Size+4 > len(body) {
			return nil, errs.New(errs.Protocol, "truncated bulk reply")
		}
		var k key.Key
		copy(k[:], body[off:off+key.Size])
		off += key.Size
		status := int32(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		results = append(results, dispatch.BulkKeyResult{Key: k, Status: status})
	}
	return results, nil
}

// decodeBulkKeyedBlobs parses a per-node bulk reply that carries a status
// and a length-prefixed blob per key, the shape bulk-read replies use:
// count + (key, status, blob_len, blob)*count.
func decodeBulkKeyedBlobs(body []byte) ([]dispatch.BulkKeyResult, error) {
	if len(body) < 4 {
		return nil, errs.New(errs.Protocol, "short bulk reply")
	}
	n := binary.BigEndian.Uint32(body[:4])
	off := 4
	results := make([]dispatch.BulkKeyResult, 0, n)
	for i := uint32(0); i < n; i++ {
		if off+key.Size+4+4 > len(body) {
			return nil, errs.New(errs.Protocol, "truncated bulk reply")
		}
		var k key.Key
		copy(k[:], body[off:off+key.Size])
		off += key.Size
		status := int32(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		blen := binary.BigEndian.Uint32(body[off : off+4])
		off += 4
		if off+int(blen) > len(body) {
			return nil, errs.New(errs.Protocol, "truncated bulk reply body")
		}
		data := append([]byte(nil), body[off:off+int(blen)]...)
		off += int(blen)
		results = append(results, dispatch.BulkKeyResult{Key: k, Status: status, Data: data})
	}
	return results, nil
}
