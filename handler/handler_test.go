package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/asyncresult"
	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// TestZeroDispatchCompletesImmediately covers the case where a dispatch
// strategy finds no members for a group and never calls SendIssued: the
// guard unit release from DispatchDone alone must complete the Result with
// zero entries.
func TestZeroDispatchCompletesImmediately(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, nil)

	h.DispatchDone()

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestSingleSendCompletesOnFinalReply verifies the ordinary path: one
// SendIssued, one final reply, then DispatchDone, in that order.
func TestSingleSendCompletesOnFinalReply(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, nil)

	h.SendIssued()
	h.ReplyFrom(key.NodeAddress{Host: "n1"}, wire.Header{Group: 7}, nil, true)
	h.DispatchDone()

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, key.GroupID(7), entries[0].Source)
	require.Equal(t, "n1", entries[0].Addr.Host)
	require.NoError(t, entries[0].Err)
}

// TestDispatchDoneBeforeReply verifies the guard unit does its job when
// dispatch finishes issuing sends before the reply for one of them has
// come back: completion must wait for the reply, not fire early.
func TestDispatchDoneBeforeReply(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, nil)

	h.SendIssued()
	h.DispatchDone()

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := r.Wait(ctx)
	require.Error(t, err, "must not complete before the outstanding reply arrives")

	h.ReplyFrom(key.NodeAddress{}, wire.Header{Group: 1}, nil, true)

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestNonZeroStatusProducesEntryError verifies a non-zero reply status is
// translated into an errs.Error on the Entry rather than surfaced as a
// decode error.
func TestNonZeroStatusProducesEntryError(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, func(wire.Header, []byte) (interface{}, error) {
		t.Fatal("decode must not run when status is non-zero")
		return nil, nil
	})

	h.SendIssued()
	h.ReplyFrom(key.NodeAddress{}, wire.Header{Group: 1, Status: int32(-errs.NotFound)}, nil, true)
	h.DispatchDone()

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Error(t, entries[0].Err)
	require.True(t, errs.Is(entries[0].Err, errs.NotFound))
}

// TestDecodeErrorSurfacesOnEntry verifies a decode failure on an otherwise
// successful reply is carried on the Entry, not dropped or panicked on.
func TestDecodeErrorSurfacesOnEntry(t *testing.T) {
	wantErr := errors.New("malformed body")
	r := asyncresult.New()
	h := NewBasicHandler(r, func(wire.Header, []byte) (interface{}, error) {
		return nil, wantErr
	})

	h.SendIssued()
	h.ReplyFrom(key.NodeAddress{}, wire.Header{Group: 1}, []byte("garbage"), true)
	h.DispatchDone()

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.ErrorIs(t, entries[0].Err, wantErr)
}

// TestSendFailedReleasesWithoutEntry verifies a transaction that never
// made it onto the wire still lets the handler reach completion, without
// fabricating an Entry for it.
func TestSendFailedReleasesWithoutEntry(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, nil)

	h.SendIssued()
	h.SendFailed()
	h.DispatchDone()

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestMultipleSendsAllMustReplyBeforeCompletion exercises the guard math
// across several outstanding sends.
func TestMultipleSendsAllMustReplyBeforeCompletion(t *testing.T) {
	r := asyncresult.New()
	h := NewBasicHandler(r, nil)

	h.SendIssued()
	h.SendIssued()
	h.SendIssued()
	h.DispatchDone()

	h.ReplyFrom(key.NodeAddress{Host: "a"}, wire.Header{Group: 1}, nil, true)
	h.ReplyFrom(key.NodeAddress{Host: "b"}, wire.Header{Group: 1}, nil, true)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := r.Wait(ctx)
	require.Error(t, err, "third reply still outstanding")

	h.ReplyFrom(key.NodeAddress{Host: "c"}, wire.Header{Group: 1}, nil, true)

	entries, err := r.Wait(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
}
