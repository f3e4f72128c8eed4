package transport

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/wire"
)

// Table is the transaction table: every in-flight transaction, keyed by its
// 64-bit transaction id. Grounded on the teacher pack's xsync.MapOf-keyed
// request table (dKV's clientConnection.requestChans): xsync shards its
// internal buckets itself, which satisfies the table-sharded-by-id
// requirement without a hand-rolled array of mutexes.
type Table struct {
	ids *IDGenerator
	m   *xsync.MapOf[uint64, *Transaction]
}

func NewTable() *Table {
	return &Table{
		ids: &IDGenerator{},
		m:   xsync.NewMapOf[uint64, *Transaction](),
	}
}

// Register allocates a fresh transaction id, stores txn under it, and
// returns the id. txn.ID is set as a side effect.
func (t *Table) Register(txn *Transaction) uint64 {
	id := t.ids.Next()
	txn.ID = id
	t.m.Store(id, txn)
	return id
}

func (t *Table) Lookup(id uint64) (*Transaction, bool) {
	return t.m.Load(id)
}

func (t *Table) Remove(id uint64) {
	t.m.Delete(id)
}

// Dispatch routes a received reply to its transaction, delivering it and,
// if the reply is terminal (no MORE flag), removing the transaction from
// the table. A reply for an id not in the table is reported via
// errs.NotFound; a reply for a transaction still in the table but already
// destroyed is not delivered and is reported via errs.Already, so callers
// can distinguish "stale reply, ignore" from a protocol violation.
func (t *Table) Dispatch(header wire.Header, body []byte) error {
	txn, ok := t.m.Load(header.TransactionID)
	if !ok {
		return errs.New(errs.NotFound, "transport: no such transaction")
	}
	final := !header.Flags.Has(wire.FlagMore)
	delivered := txn.deliver(header, body, final)
	if final {
		t.m.Delete(header.TransactionID)
	}
	if !delivered {
		return errs.New(errs.Already, "transport: transaction already completed")
	}
	return nil
}

// Len reports the number of currently outstanding transactions, used by
// StatLog and tests.
func (t *Table) Len() int {
	return t.m.Size()
}

// Range calls f for every outstanding transaction; f returning false stops
// iteration early. Nothing in this module calls it outside its tests; the
// deadline queue keeps its own heap of transactions.
func (t *Table) Range(f func(txn *Transaction) bool) {
	t.m.Range(func(_ uint64, txn *Transaction) bool {
		return f(txn)
	})
}
