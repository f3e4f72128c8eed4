package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshkv/meshkv/key"
	"github.com/meshkv/meshkv/wire"
)

// TestDeadlineQueueRemovesFromTable exercises the fix that threads the
// transaction table through NewDeadlineQueue: an expired transaction must
// not linger in the table after its synthesized TimedOut reply fires
// (spec §4.7).
func TestDeadlineQueueRemovesFromTable(t *testing.T) {
	table := NewTable()

	delivered := make(chan bool, 1)
	txn := &Transaction{
		Destination: key.NodeAddress{Host: "node0", Port: 1025},
		Deadline:    time.Now().Add(20 * time.Millisecond),
		Reply: func(header wire.Header, body []byte, final bool) {
			delivered <- final
		},
	}
	id := table.Register(txn)

	q := NewDeadlineQueue(table, nil)
	defer q.Close()

	q.Add(txn)

	select {
	case final := <-delivered:
		require.True(t, final, "a timeout reply must be terminal")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for synthesized TimedOut reply")
	}

	require.Eventually(t, func() bool {
		_, stillThere := table.Lookup(id)
		return !stillThere
	}, time.Second, 5*time.Millisecond, "expired transaction must be removed from the table")
}

// TestDeadlineQueueNoTimeout confirms a transaction that never gets a
// deadline (zero Deadline) is never touched by Add.
func TestDeadlineQueueNoTimeout(t *testing.T) {
	table := NewTable()
	txn := &Transaction{
		Destination: key.NodeAddress{Host: "node0", Port: 1025},
		Reply:       func(header wire.Header, body []byte, final bool) {},
	}
	id := table.Register(txn)

	q := NewDeadlineQueue(table, nil)
	defer q.Close()
	q.Add(txn)

	time.Sleep(30 * time.Millisecond)
	_, ok := table.Lookup(id)
	require.True(t, ok, "a transaction with no deadline must not be expired")
}
