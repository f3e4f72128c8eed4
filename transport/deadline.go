package transport

import (
	"container/heap"
	"time"

	"github.com/meshkv/meshkv/internal/errs"
	"github.com/meshkv/meshkv/internal/metrics"
	"github.com/meshkv/meshkv/util/chainlock"
	"github.com/meshkv/meshkv/wire"
)

// DeadlineQueue expires transactions whose deadline has passed with a
// synthesized TimedOut reply. It is adapted from the teacher's replication
// step queue: a container/heap ordered by target time, guarded by a
// chainlock so a condition variable can be built on the same mutex, but
// repurposed here to wake a single timer goroutine at the next deadline
// instead of admitting work up to a concurrency limit.
type DeadlineQueue struct {
	lock    *chainlock.L
	cond    interface {
		Wait()
		Broadcast()
		Signal()
	}
	items   deadlineHeap
	stop    chan struct{}
	stopped bool
	metrics *metrics.Collector
	table   *Table
}

type deadlineItem struct {
	idx      int
	deadline time.Time
	txn      *Transaction
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}
func (h *deadlineHeap) Push(x interface{}) {
	item := x.(*deadlineItem)
	item.idx = len(*h)
	*h = append(*h, item)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	item.idx = -1
	*h = old[:n-1]
	return item
}

// NewDeadlineQueue returns a running DeadlineQueue bound to table: on
// expiry it removes the transaction from table before synthesizing its
// TimedOut reply, so an expired transaction never lingers in the table
// (spec §4.7). m may be nil if the caller doesn't want timeout metrics.
func NewDeadlineQueue(table *Table, m *metrics.Collector) *DeadlineQueue {
	l := chainlock.New()
	q := &DeadlineQueue{
		lock:    l,
		cond:    l.NewCond(),
		stop:    make(chan struct{}),
		metrics: m,
		table:   table,
	}
	go q.run()
	return q
}

// Add enqueues txn to expire at its Deadline. A zero Deadline means "no
// timeout", and Add is a no-op for it.
func (q *DeadlineQueue) Add(txn *Transaction) {
	if txn.Deadline.IsZero() {
		return
	}
	defer q.lock.Lock().Unlock()
	heap.Push(&q.items, &deadlineItem{deadline: txn.Deadline, txn: txn})
	q.cond.Broadcast()
}

func (q *DeadlineQueue) Close() {
	defer q.lock.Lock().Unlock()
	q.stopped = true
	q.cond.Broadcast()
}

func (q *DeadlineQueue) run() {
	defer q.lock.Lock().Unlock()
	for {
		for !q.stopped && (q.items.Len() == 0 || time.Now().Before(q.items[0].deadline)) {
			if q.items.Len() == 0 {
				q.cond.Wait()
				continue
			}
			wait := time.Until(q.items[0].deadline)
			if wait <= 0 {
				break
			}
			q.waitWithTimeout(wait)
		}
		if q.stopped {
			return
		}
		item := heap.Pop(&q.items).(*deadlineItem)
		txn := item.txn
		q.lock.DropWhile(func() {
			if q.table != nil {
				q.table.Remove(txn.ID)
			}
			txn.deliver(timeoutHeader(txn), nil, true)
		})
	}
}

// waitWithTimeout blocks the caller (which must hold q.lock) until either
// the condition is signalled or d elapses, whichever first; it re-acquires
// the lock before returning either way, matching chainlock.Cond.Wait's
// contract.
func (q *DeadlineQueue) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		defer q.lock.Lock().Unlock()
		q.cond.Broadcast()
	})
	defer timer.Stop()
	q.cond.Wait()
}

func timeoutHeader(txn *Transaction) wire.Header {
	return wire.Header{
		TransactionID: txn.ID,
		Status:        errs.New(errs.TimedOut, "deadline expired").Status(),
		Opcode:        txn.Opcode,
	}
}
