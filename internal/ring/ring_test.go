package ring

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

func TestBufferBasic(t *testing.T) {
	b := New(4)
	req1 := memtier.AccessRequest{ClientID: 0, PageOffset: 1, Operation: memtier.Read}
	req2 := memtier.AccessRequest{ClientID: 0, PageOffset: 2, Operation: memtier.Write}
	if !b.Push(req1) || !b.Push(req2) {
		t.Fatal("push failed on a non-full buffer")
	}
	got, ok := b.Pop()
	if !ok || got != req1 {
		t.Fatalf("expected %+v, got %+v (ok=%v)", req1, got, ok)
	}
	got, ok = b.Pop()
	if !ok || got != req2 {
		t.Fatalf("expected %+v, got %+v (ok=%v)", req2, got, ok)
	}
	if _, ok := b.Pop(); ok {
		t.Fatal("expected empty buffer")
	}
}

func TestBufferFullReturnsFalse(t *testing.T) {
	b := New(2) // rounds up to 2
	req := memtier.AccessRequest{ClientID: 1, PageOffset: 0, Operation: memtier.Read}
	for i := 0; i < b.Cap(); i++ {
		if !b.Push(req) {
			t.Fatalf("push %d should have succeeded", i)
		}
	}
	if b.Push(req) {
		t.Fatal("push into a full buffer should return false")
	}
}

// TestBufferFIFOPerProducer verifies spec.md's "FIFO per producer" property:
// a single producer's requests are observed by a single consumer in the
// order they were pushed.
func TestBufferFIFOPerProducer(t *testing.T) {
	b := New(16)
	const n = 1000
	go func() {
		for i := 0; i < n; i++ {
			req := memtier.AccessRequest{ClientID: 7, PageOffset: i, Operation: memtier.Read}
			b.PushWait(req, nil)
		}
	}()
	deadline := time.Now().Add(30 * time.Second)
	for i := 0; i < n; i++ {
		got, ok := b.Pop()
		for !ok && time.Now().Before(deadline) {
			runtime.Gosched()
			got, ok = b.Pop()
		}
		if !ok {
			t.Fatalf("expected item %d", i)
		}
		if got.PageOffset != i {
			t.Fatalf("fifo violation: expected offset %d, got %d", i, got.PageOffset)
		}
	}
}

func TestBufferConcurrentNoLoss(t *testing.T) {
	b := New(256)
	const producers = 4
	const perProducer = 5000
	var produced, consumed uint64

	var wgProd sync.WaitGroup
	wgProd.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wgProd.Done()
			for i := 0; i < perProducer; i++ {
				req := memtier.AccessRequest{ClientID: id, PageOffset: i, Operation: memtier.Read}
				b.PushWait(req, nil)
				atomic.AddUint64(&produced, 1)
			}
		}(p)
	}

	done := make(chan struct{})
	var wgCons sync.WaitGroup
	wgCons.Add(4)
	for c := 0; c < 4; c++ {
		go func() {
			defer wgCons.Done()
			for {
				if _, ok := b.Pop(); ok {
					atomic.AddUint64(&consumed, 1)
					continue
				}
				select {
				case <-done:
					// final drain
					for {
						if _, ok := b.Pop(); ok {
							atomic.AddUint64(&consumed, 1)
							continue
						}
						return
					}
				default:
				}
			}
		}()
	}

	wgProd.Wait()
	close(done)
	wgCons.Wait()

	want := uint64(producers * perProducer)
	if got := atomic.LoadUint64(&consumed); got != want {
		t.Fatalf("lost messages: produced %d, consumed %d", want, got)
	}
}
