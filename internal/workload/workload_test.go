package workload

import (
	"context"
	"testing"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/ring"
)

func TestGeneratorOffsetsStayInRange(t *testing.T) {
	for _, p := range []Pattern{Uniform, Hot, Zipfian} {
		g := New(0, 100, p, 0.5, 1.5, time.Millisecond, 1)
		for i := 0; i < 1000; i++ {
			off := g.nextOffset()
			if off < 0 || off >= 100 {
				t.Fatalf("pattern %s: offset %d out of range [0,100)", p, off)
			}
		}
	}
}

func TestGeneratorRunEmitsEndOnLastMessage(t *testing.T) {
	buf := ring.New(64)
	g := New(3, 10, Uniform, 1.0, 0, 5*time.Millisecond, 42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		g.Run(ctx, buf)
		close(runDone)
	}()

	// Drain concurrently, as the server would: Run waits for room before
	// pushing END, so a buffer nobody drains would never receive it.
	var last memtier.AccessRequest
	count := 0
	drain := func() {
		for {
			req, ok := buf.Pop()
			if !ok {
				return
			}
			last = req
			count++
		}
	}
	for running := true; running; {
		select {
		case <-runDone:
			running = false
		default:
		}
		drain()
	}
	if count == 0 {
		t.Fatal("expected at least the END request")
	}
	if last.Operation != memtier.End {
		t.Fatalf("expected the final request to be END, got %s", last.Operation)
	}
	if last.ClientID != 3 {
		t.Fatalf("expected END to carry client_id 3, got %d", last.ClientID)
	}
}

func TestGeneratorRatioAllReads(t *testing.T) {
	g := New(0, 10, Uniform, 1.0, 0, time.Millisecond, 7)
	for i := 0; i < 100; i++ {
		if g.nextOp() != memtier.Read {
			t.Fatal("expected all reads when ratio is 1.0")
		}
	}
}
