// Package session implements the policy-container façade of spec §4.1: the
// entry point applications call for every operation, translating session
// policy plus a request into one or more dispatches and returning a single
// asyncresult.Result with filter/checker policy applied.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/meshkv/meshkv/aggregator"
	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/dispatch"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/internal/logger"
	"github.com/meshkv/meshkv/internal/metrics"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/streaming"
	"github.com/meshkv/meshkv/util/chunking"
	"github.com/meshkv/meshkv/wire"
)

// Session holds the policy every operation is dispatched under: the group
// set, namespace, flags, deadlines, filter/checker kinds, exception policy
// and optional address overrides (spec §3/§4.1).
type Session struct {
	dispatcher *dispatch.Dispatcher
	self       key.NodeAddress
	log        *logger.Logger
	metrics    *metrics.Collector

	Groups      []key.GroupID
	Namespace   []byte
	CFlags      wire.Flags
	IOFlags     wire.Flags
	UserFlags   uint64
	Timeout     time.Duration
	Timestamp   uint64
	TraceID     uint32
	Filter      FilterKind
	Checker     CheckerKind
	Exceptions  ExceptionPolicy
	Forward     *key.NodeAddress
	Direct      *key.NodeAddress

	// CacheLifetime and JSON timestamp overrides apply to every write
	// issued through this session until cleared: ResetJSONTimestamp drops
	// the timestamp override, and CleanClone returns a session with
	// neither set. A write does not reset them.
	jsonTimestamp    uint64
	jsonTimestampSet bool
	cacheLifetime    uint64

	// expectedChecksum is the one-shot CHECKSUM write modifier WriteCAS
	// sets on its clean clone before dispatching (spec §4.1's write_cas);
	// meaningless unless CFlags carries FlagChecksum.
	expectedChecksum uint64
}

// New returns a Session with sane defaults: no groups configured (must be
// set before use), FilterPositive, CheckerAtLeastOne, no exceptions.
func New(d *dispatch.Dispatcher, self key.NodeAddress, log *logger.Logger, m *metrics.Collector) *Session {
	if log == nil {
		log = logger.NewNull()
	}
	return &Session{
		dispatcher: d,
		self:       self,
		log:        log,
		metrics:    m,
		Filter:     FilterPositive,
		Checker:    CheckerAtLeastOne,
	}
}

// CleanClone returns a session with the same policy but no transient
// per-call overrides (spec §4.1's clean_clone).
func (s *Session) CleanClone() *Session {
	clone := *s
	clone.jsonTimestamp = 0
	clone.jsonTimestampSet = false
	clone.cacheLifetime = 0
	clone.expectedChecksum = 0
	clone.Groups = append([]key.GroupID(nil), s.Groups...)
	return &clone
}

// SetJSONTimestamp sets the timestamp stamped on the json part of every
// later write issued through this session, until ResetJSONTimestamp.
func (s *Session) SetJSONTimestamp(ts uint64) { s.jsonTimestamp, s.jsonTimestampSet = ts, true }

// ResetJSONTimestamp clears a previously set json timestamp override; later
// writes stamp the client's current Unix time instead.
func (s *Session) ResetJSONTimestamp() { s.jsonTimestamp, s.jsonTimestampSet = 0, false }

// SetCacheLifetime sets the cache lifetime carried on every later write's
// WriteRequestHeader.
func (s *Session) SetCacheLifetime(d time.Duration) { s.cacheLifetime = uint64(d.Seconds()) }

func (s *Session) traceID() uint32 {
	if s.TraceID != 0 {
		return s.TraceID
	}
	return uuid.New().ID()
}

func (s *Session) deadline() time.Time {
	if s.Timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.Timeout)
}

// control builds a dispatch.Control from the session's current policy plus
// a specific opcode/key/body, the common preamble of every operation below.
func (s *Session) control(opcode wire.Opcode, k key.Key, body []byte) dispatch.Control {
	return dispatch.Control{
		Opcode:  opcode,
		Flags:   s.CFlags,
		KeyID:   k,
		Body:    body,
		Timeout: s.Timeout,
		Direct:  s.Direct,
		Forward: s.Forward,
	}
}

// Lookup locates key in each configured group, producing one entry per
// successful replica.
func (s *Session) Lookup(k key.Key) *asyncresult.Result {
	c := s.control(wire.OpLookup, k, nil)
	result := dispatch.ToGroups(s.dispatcher, c, s.Groups, decodeLookup)
	return s.finish("lookup", result)
}

// Read reads size bytes at offset from a single replica of key via the
// chunked streaming read state machine: the Direct or Forward override if
// set, otherwise key's owner in the first configured group.
func (s *Session) Read(ctx context.Context, k key.Key, offset, size uint64) ([]byte, error) {
	dest, ok := s.resolveRead(k)
	if !ok {
		return nil, errs.New(errs.NoRoute, "no route for key")
	}
	conn, err := s.dispatcher.Pool.Dial(dest)
	if err != nil {
		return nil, errors.Wrap(err, "session: read")
	}
	defer conn.Close()

	req := wire.ReadRequest{
		Cmd: wire.Header{
			KeyID:   k,
			Group:   firstGroup(s.Groups),
			Flags:   s.CFlags,
			Opcode:  wire.OpRead,
			TraceID: s.traceID(),
		},
		IOFlags:    s.IOFlags,
		DataOffset: offset,
		DataSize:   size,
	}

	var out []byte
	err = streaming.Read(conn, req, s.deadline(), func(jsonChunk, dataChunk []byte, final bool) error {
		out = append(out, dataChunk...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "session: read")
	}
	return out, nil
}

// ReadLatest performs a lookup across every configured group and reads
// from the replica whose lookup reply carries the newest data timestamp.
// Replicas are ranked by that timestamp alone: among equal timestamps the
// first reply received wins, and no preference score is applied.
func (s *Session) ReadLatest(ctx context.Context, k key.Key, offset, size uint64) ([]byte, error) {
	entries, err := s.Lookup(k).Wait(ctx)
	if err != nil {
		return nil, err
	}
	best, ok := freshestEntry(entries)
	if !ok {
		return nil, errs.New(errs.NotFound, "no replicas found")
	}

	direct := best.Addr
	clone := s.CleanClone()
	clone.Direct = &direct
	return clone.Read(ctx, k, offset, size)
}

// ReadJSON reads only the json part of a record (spec.md supplement).
func (s *Session) ReadJSON(ctx context.Context, k key.Key) ([]byte, error) {
	dest, ok := s.resolveRead(k)
	if !ok {
		return nil, errs.New(errs.NoRoute, "no route for key")
	}
	conn, err := s.dispatcher.Pool.Dial(dest)
	if err != nil {
		return nil, errors.Wrap(err, "session: read json")
	}
	defer conn.Close()
	req := wire.ReadRequest{
		Cmd: wire.Header{KeyID: k, Group: firstGroup(s.Groups), Flags: s.CFlags, Opcode: wire.OpRead, TraceID: s.traceID()},
	}
	var out []byte
	err = streaming.Read(conn, req, s.deadline(), func(jsonChunk, dataChunk []byte, final bool) error {
		out = append(out, jsonChunk...)
		return nil
	})
	return out, errors.Wrap(err, "session: read json")
}

// ReadRecordData reads only the data part of a record, symmetric with
// ReadJSON (spec.md supplement).
func (s *Session) ReadRecordData(ctx context.Context, k key.Key, offset, size uint64) ([]byte, error) {
	return s.Read(ctx, k, offset, size)
}

// Write fans out a write to every configured group concurrently, sending
// one streaming write per destination (a WriteRequestHeader message, then
// json/data chunks flagged MORE until the last) via the streaming write
// state machine. Every message of it carries the OpWritePrepare opcode; no
// separate plain or commit command is sent. It then applies filter/checker
// policy over the per-group outcomes exactly like Remove/Lookup: one group
// failing (no route, a dial error, or a rejected write) never keeps the
// remaining groups from being attempted.
func (s *Session) Write(ctx context.Context, k key.Key, jsonBody, data []byte, offset uint64) ([]wire.LookupResponse, error) {
	result := s.finish("write", s.writeGroups(ctx, k, jsonBody, data, offset))
	entries, err := result.Wait(ctx)

	var responses []wire.LookupResponse
	for _, e := range entries {
		if resp, ok := e.Data.(wire.LookupResponse); ok {
			responses = append(responses, resp)
		}
	}
	return responses, err
}

// writeGroups dispatches one chunked write per configured group in its own
// goroutine and fans the per-group outcomes into a single Result via
// aggregator.Combine, the same "M independent results into one" composition
// dispatch.ToGroups gets from the transaction-table/handler machinery for
// single-message operations; the chunked write state machine talks directly
// to a dialed connection instead, so it needs its own fan-out here.
func (s *Session) writeGroups(ctx context.Context, k key.Key, jsonBody, data []byte, offset uint64) *asyncresult.Result {
	results := make([]*asyncresult.Result, len(s.Groups))
	for i, g := range s.Groups {
		g := g
		r := asyncresult.New()
		results[i] = r
		go func() {
			r.Process(s.writeOneGroup(k, g, jsonBody, data, offset))
			r.SetTotal(1)
		}()
	}
	return aggregator.Combine(ctx, results...)
}

// writeOneGroup performs one group's chunked write and reports the outcome
// as an Entry sourced by group id instead of returning early, so a failure
// here never aborts the other groups' writes.
func (s *Session) writeOneGroup(k key.Key, g key.GroupID, jsonBody, data []byte, offset uint64) asyncresult.Entry {
	dest, ok := s.resolveWrite(k, g)
	if !ok {
		return asyncresult.Entry{Source: g, Err: errs.New(errs.NoRoute, fmt.Sprintf("no route for group %d", g))}
	}
	conn, err := s.dispatcher.Pool.Dial(dest)
	if err != nil {
		return asyncresult.Entry{Source: g, Addr: dest, Err: errors.Wrap(err, "session: write")}
	}
	defer conn.Close()

	ts := s.jsonTimestamp
	if !s.jsonTimestampSet {
		ts = uint64(time.Now().Unix())
	}
	header := wire.WriteRequestHeader{
		Cmd: wire.Header{
			KeyID: k, Group: g, Flags: s.CFlags, Opcode: wire.OpWritePrepare, TraceID: s.traceID(),
		},
		IOFlags:          s.IOFlags,
		UserFlags:        s.UserFlags,
		JSONTimestamp:    ts,
		JSONSize:         uint64(len(jsonBody)),
		JSONCapacity:     uint64(len(jsonBody)),
		DataTimestamp:    ts,
		DataOffset:       offset,
		DataSize:         uint64(len(data)),
		DataCapacity:     uint64(len(data)),
		DataCommitSize:   uint64(len(data)),
		CacheLifetime:    s.cacheLifetime,
		ExpectedChecksum: s.expectedChecksum,
	}

	// dataCap bounds each chunk's data payload so jsonBody (sent once, on
	// the first chunk) plus that chunk's data stays within
	// streaming.MaxChunkBody; it is capped at chunking.ChunkBufSize, the
	// teacher's own default framing unit.
	dataCap := streaming.MaxChunkBody - len(jsonBody)
	if dataCap <= 0 || dataCap > int(chunking.ChunkBufSize) {
		dataCap = int(chunking.ChunkBufSize)
	}
	sentJSON := false
	offsetIntoData := 0
	resp, err := streaming.Write(conn, header, s.deadline(), func() ([]byte, []byte, bool, error) {
		var j []byte
		if !sentJSON {
			j = jsonBody
			sentJSON = true
		}
		end := offsetIntoData + dataCap
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offsetIntoData:end]
		offsetIntoData = end
		final := offsetIntoData >= len(data)
		return j, chunk, final, nil
	})
	if err != nil {
		return asyncresult.Entry{Source: g, Addr: dest, Err: errors.Wrap(err, "session: write")}
	}
	return asyncresult.Entry{Source: g, Addr: dest, Data: resp}
}

// UpdateJSON rewrites only the json part of a record, reusing the write
// state machine with a zero-length data payload (spec.md supplement).
func (s *Session) UpdateJSON(ctx context.Context, k key.Key, jsonBody []byte) ([]wire.LookupResponse, error) {
	return s.Write(ctx, k, jsonBody, nil, 0)
}

// WriteCAS writes newData only if the remote's current checksum matches
// expectedChecksum (the CHECKSUM flag form of spec §4.1). The expected
// checksum travels in the WriteRequestHeader itself, so a mismatch comes
// back as a real errs.ChecksumMismatch status rather than an unconditional
// overwrite.
func (s *Session) WriteCAS(ctx context.Context, k key.Key, newData []byte, expectedChecksum uint64, offset uint64) ([]wire.LookupResponse, error) {
	cas := s.CleanClone()
	cas.CFlags = cas.CFlags.With(wire.FlagChecksum)
	cas.expectedChecksum = expectedChecksum
	return cas.Write(ctx, k, nil, newData, offset)
}

// Converter computes the next write body from the data currently stored at
// a key, for the read-modify-write form of WriteCAS.
type Converter func(current []byte) ([]byte, error)

// WriteCASRetry reads the current value and its checksum, applies convert,
// and writes the result with checksum protection, retrying up to retries
// times on a checksum mismatch (spec §4.1's read-modify-write write_cas).
// Each attempt re-looks-up the checksum rather than reusing the previous
// attempt's, since a retry must check against whatever the remote holds
// now.
func (s *Session) WriteCASRetry(ctx context.Context, k key.Key, convert Converter, offset uint64, retries int) ([]wire.LookupResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		current, err := s.Read(ctx, k, 0, 0)
		if err != nil && !errs.Is(err, errs.NotFound) {
			return nil, err
		}
		next, err := convert(current)
		if err != nil {
			return nil, err
		}

		var expectedChecksum uint64
		entries, err := s.Lookup(k).Wait(ctx)
		if err != nil && !errs.Is(err, errs.NotFound) {
			return nil, err
		}
		if best, ok := freshestEntry(entries); ok {
			if resp, ok := best.Data.(wire.LookupResponse); ok {
				expectedChecksum = resp.DataChecksum
			}
		}

		resp, err := s.WriteCAS(ctx, k, next, expectedChecksum, offset)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errs.Is(err, errs.ChecksumMismatch) {
			return resp, err
		}
	}
	return nil, errors.Wrap(lastErr, "session: write_cas exhausted retries")
}

// Remove removes key from every configured group.
func (s *Session) Remove(k key.Key) *asyncresult.Result {
	c := s.control(wire.OpRemove, k, nil)
	result := dispatch.ToGroups(s.dispatcher, c, s.Groups, nil)
	return s.finish("remove", result)
}

// UpdateStatus updates the status of id's replica at address, forcing the
// DIRECT flag per spec §4.1.
func (s *Session) UpdateStatus(address key.NodeAddress, id key.Key, status int32) *asyncresult.Result {
	c := dispatch.Control{
		Opcode:  wire.OpUpdateStatus,
		Flags:   s.CFlags.With(wire.FlagDirect),
		KeyID:   id,
		Timeout: s.Timeout,
		Direct:  &address,
	}
	result := dispatch.ToSingleState(s.dispatcher, c, nil)
	return s.finish("update_status", result)
}

// finish applies filter/checker policy to result and, once it completes,
// reports the operation's outcome and latency under op to s.metrics.
func (s *Session) finish(op string, result *asyncresult.Result) *asyncresult.Result {
	started := time.Now()
	out := s.applyPolicy(result)
	out.Subscribe(asyncresult.Subscriber{OnFinal: func(err error) {
		s.metrics.ObserveOp(op, time.Since(started), err)
	}})
	return out
}

func (s *Session) resolveRead(k key.Key) (key.NodeAddress, bool) {
	if s.Direct != nil {
		return *s.Direct, true
	}
	if s.Forward != nil {
		return *s.Forward, true
	}
	return s.dispatcher.Routing.Locate(firstGroup(s.Groups), k)
}

func (s *Session) resolveWrite(k key.Key, g key.GroupID) (key.NodeAddress, bool) {
	if s.Direct != nil {
		return *s.Direct, true
	}
	if s.Forward != nil {
		return *s.Forward, true
	}
	return s.dispatcher.Routing.Locate(g, k)
}

func firstGroup(groups []key.GroupID) key.GroupID {
	if len(groups) == 0 {
		return 0
	}
	return groups[0]
}

func decodeLookup(header wire.Header, body []byte) (interface{}, error) {
	return wire.UnmarshalLookupResponse(append(header.Marshal(), body...))
}

func freshestEntry(entries []asyncresult.Entry) (asyncresult.Entry, bool) {
	var best asyncresult.Entry
	var bestTS uint64
	found := false
	for _, e := range entries {
		resp, ok := e.Data.(wire.LookupResponse)
		if !ok || e.Err != nil {
			continue
		}
		if !found || resp.DataTimestamp > bestTS {
			best, bestTS, found = e, resp.DataTimestamp, true
		}
	}
	return best, found
}

// StatLog reports the mean, median and 99th percentile of the latency
// samples the caller passes in; it keeps no history of its own and does
// not read the transaction table.
func (s *Session) StatLog(samples []float64) (StatSummary, error) {
	if len(samples) == 0 {
		return StatSummary{}, nil
	}
	mean, err := stats.Mean(samples)
	if err != nil {
		return StatSummary{}, errors.Wrap(err, "session: stat_log mean")
	}
	p50, err := stats.Percentile(samples, 50)
	if err != nil {
		return StatSummary{}, errors.Wrap(err, "session: stat_log p50")
	}
	p99, err := stats.Percentile(samples, 99)
	if err != nil {
		return StatSummary{}, errors.Wrap(err, "session: stat_log p99")
	}
	return StatSummary{Mean: mean, P50: p50, P99: p99, Count: len(samples)}, nil
}

// StatLogForNode is StatLog scoped to samples already filtered by node;
// the filtering itself is the caller's responsibility (this module does
// not retain per-node history beyond what the transaction table exposes
// transiently).
func (s *Session) StatLogForNode(samples []float64) (StatSummary, error) {
	return s.StatLog(samples)
}

// StatLogCount reports the number of currently outstanding transactions.
func (s *Session) StatLogCount() int {
	return s.dispatcher.Transactions.Len()
}

// StatSummary is the latency summary StatLog returns.
type StatSummary struct {
	Mean  float64
	P50   float64
	P99   float64
	Count int
}
