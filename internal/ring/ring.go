// Package ring implements the bounded MPMC ring buffer that carries
// AccessRequest messages from workload producers to the server's manager
// task. Push and Pop are both non-blocking; callers that want to wait spin
// with a short back-off rather than parking on a condition variable.
package ring

import (
	"sync/atomic"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// spinBackoff is the hint producers/consumers sleep for between failed
// non-blocking attempts.
const spinBackoff = 100 * time.Nanosecond

// cell holds one slot of the ring along with the sequence number Vyukov's
// algorithm uses to detect whether the slot is ready for a producer or a
// consumer.
type cell struct {
	seq uint64
	val memtier.AccessRequest
	// pad widens each cell beyond a 64-byte cache line so that a producer
	// publishing one slot shares a line with a consumer draining its
	// neighbor less often; the cells are not line-aligned, so some
	// neighbors still share one.
	_ [40]byte
}

// Buffer is a bounded, lock-free multi-producer multi-consumer queue of
// AccessRequest values. FIFO order holds per producer; there is no
// cross-producer ordering guarantee. The zero value is not usable; use New.
type Buffer struct {
	mask    uint64
	_       [56]byte
	enqueue uint64
	_       [56]byte
	dequeue uint64
	_       [56]byte
	cells   []cell
}

// New creates a Buffer with at least the requested capacity, rounded up to
// the next power of two and to no fewer than two slots, as the slot-index
// algorithm requires (with a single slot a full cell's sequence number
// looks free to the next producer).
func New(capacity int) *Buffer {
	if capacity < 2 {
		capacity = 2
	}
	capPow2 := uint64(1)
	for capPow2 < uint64(capacity) {
		capPow2 <<= 1
	}
	b := &Buffer{
		mask:  capPow2 - 1,
		cells: make([]cell, capPow2),
	}
	for i := range b.cells {
		b.cells[i].seq = uint64(i)
	}
	return b
}

// Cap reports the buffer's rounded-up capacity.
func (b *Buffer) Cap() int { return len(b.cells) }

// Push attempts to enqueue item without blocking. It returns false when the
// buffer is full; the caller is expected to spin with a short back-off and
// retry.
func (b *Buffer) Push(item memtier.AccessRequest) bool {
	for {
		pos := atomic.LoadUint64(&b.enqueue)
		c := &b.cells[pos&b.mask]
		seq := atomic.LoadUint64(&c.seq)
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&b.enqueue, pos, pos+1) {
				c.val = item
				atomic.StoreUint64(&c.seq, pos+1)
				return true
			}
		case diff < 0:
			return false
		default:
			// another producer has already claimed this slot; retry.
		}
	}
}

// PushWait repeatedly calls Push, spinning with spinBackoff between
// attempts, until it succeeds or ctx-like cancellation is signalled via the
// stop function returning true.
func (b *Buffer) PushWait(item memtier.AccessRequest, stop func() bool) bool {
	for {
		if b.Push(item) {
			return true
		}
		if stop != nil && stop() {
			return false
		}
		time.Sleep(spinBackoff)
	}
}

// Pop attempts to dequeue an item without blocking. It returns false when
// the buffer is empty.
func (b *Buffer) Pop() (memtier.AccessRequest, bool) {
	for {
		pos := atomic.LoadUint64(&b.dequeue)
		c := &b.cells[pos&b.mask]
		seq := atomic.LoadUint64(&c.seq)
		diff := int64(seq) - int64(pos+1)
		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&b.dequeue, pos, pos+1) {
				item := c.val
				atomic.StoreUint64(&c.seq, pos+b.mask+1)
				return item, true
			}
		case diff < 0:
			var zero memtier.AccessRequest
			return zero, false
		default:
			// another consumer has already claimed this slot; retry.
		}
	}
}

// SpinBackoff exposes the configured backoff duration so callers (e.g. the
// server's manager loop) sleep for the same interval rather than
// inventing their own constant.
func SpinBackoff() time.Duration { return spinBackoff }
