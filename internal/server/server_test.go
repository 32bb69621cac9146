package server

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/ring"
)

type fakeTable struct {
	accesses []int
}

func (f *fakeTable) Access(pageID int, _ memtier.Op) { f.accesses = append(f.accesses, pageID) }

type identityMapper struct{ base int }

func (m identityMapper) GlobalPageID(clientID, pageOffset int) int {
	return m.base*clientID + pageOffset
}

type noopLoop struct{ ran chan struct{} }

func (n *noopLoop) Run(ctx context.Context) error {
	if n.ran != nil {
		close(n.ran)
	}
	<-ctx.Done()
	return nil
}

func TestServerShutsDownAfterAllClientsEnd(t *testing.T) {
	buf := ring.New(8)
	table := &fakeTable{}
	mapper := identityMapper{base: 100}
	scanner := &noopLoop{}
	metrics := &noopLoop{}

	srv := New(buf, table, mapper, scanner, metrics, 2, zerolog.Nop())

	buf.Push(memtier.AccessRequest{ClientID: 0, PageOffset: 1, Operation: memtier.Read})
	buf.Push(memtier.AccessRequest{ClientID: 0, PageOffset: 0, Operation: memtier.End})
	buf.Push(memtier.AccessRequest{ClientID: 1, PageOffset: 0, Operation: memtier.End})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not shut down after both clients ended")
	}

	if !srv.IsShutdown() {
		t.Fatal("expected shutdown flag to be set")
	}
	if len(table.accesses) != 1 || table.accesses[0] != 1 {
		t.Fatalf("expected exactly one access to page 1, got %v", table.accesses)
	}
}

func TestServerIgnoresEndFromUnknownClient(t *testing.T) {
	buf := ring.New(8)
	table := &fakeTable{}
	mapper := identityMapper{base: 1}
	scanner := &noopLoop{}
	metrics := &noopLoop{}

	srv := New(buf, table, mapper, scanner, metrics, 1, zerolog.Nop())

	buf.Push(memtier.AccessRequest{ClientID: 5, PageOffset: 0, Operation: memtier.End})
	buf.Push(memtier.AccessRequest{ClientID: 0, PageOffset: 0, Operation: memtier.End})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !srv.IsShutdown() {
		t.Fatal("expected shutdown after the legitimate client_id 0 ends")
	}
}
