// Package latency implements the time-record queue used to carry
// latency and encode-time samples from a producing ProviderThread to
// the stats reducer without blocking the producer's tick loop.
package latency

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Record is one (start, end, ticksPerUnit) latency sample. Latency in
// microseconds is (End-Start)/TicksPerUnit.
type Record struct {
	Start        int64
	End          int64
	TicksPerUnit int64
}

// Micros returns the recorded latency in microseconds.
func (r Record) Micros() int64 {
	if r.TicksPerUnit == 0 {
		return 0
	}
	return (r.End - r.Start) / r.TicksPerUnit
}

const cacheLinePad = 64

// Queue is a fixed-capacity single-producer/single-consumer ring of
// Records. The producer is the owning ProviderThread (on its tick-loop
// goroutine); the consumer is the stats reducer. Head and tail counters
// are padded to their own cache line so producer and consumer do not
// false-share.
type Queue struct {
	buf  []atomic.Pointer[Record]
	mask uint64

	_    [cacheLinePad]byte
	head uint64 // producer-owned write cursor

	_    [cacheLinePad]byte
	tail uint64 // consumer-owned read cursor

	pool sync.Pool
}

// NewQueue returns a Queue whose capacity is rounded up to the next
// power of two at or above capacity.
func NewQueue(capacity int) *Queue {
	n := 1
	for n < capacity {
		n *= 2
	}
	q := &Queue{
		buf:  make([]atomic.Pointer[Record], n),
		mask: uint64(n - 1),
	}
	q.pool.New = func() any { return new(Record) }
	return q
}

// Submit records one sample. It never blocks; if the ring is full (the
// consumer has fallen more than a full revolution behind), the oldest
// unread sample is dropped to make room, since the reducer will simply
// compute slightly incomplete statistics for that interval rather than
// stall the producer.
func (q *Queue) Submit(rec Record) {
	r := q.pool.Get().(*Record)
	*r = rec
	idx := atomic.AddUint64(&q.head, 1) - 1
	slot := &q.buf[idx&q.mask]
	if old := slot.Swap(r); old != nil {
		q.pool.Put(old)
	}
}

// Drain atomically pops every sample currently visible into out,
// returning the extended slice. It is safe to call only from the single
// consumer goroutine.
func (q *Queue) Drain(out []Record) []Record {
	head := atomic.LoadUint64(&q.head)
	tail := q.tail
	if head-tail > uint64(len(q.buf)) {
		// Samples older than one revolution were overwritten by Submit.
		tail = head - uint64(len(q.buf))
	}
	for tail < head {
		slot := &q.buf[tail&q.mask]
		r := slot.Load()
		for r == nil {
			runtime.Gosched()
			r = slot.Load()
		}
		out = append(out, *r)
		slot.Store(nil)
		q.pool.Put(r)
		tail++
	}
	q.tail = tail
	return out
}

// Len reports an approximate number of unread samples; it is only
// exact when called from the consumer goroutine with no concurrent
// Submit in flight.
func (q *Queue) Len() int {
	return int(atomic.LoadUint64(&q.head) - q.tail)
}
