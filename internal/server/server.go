// Package server implements the Server: the component that orchestrates the
// request-consumer, scanner, and periodic-metrics tasks and owns shutdown.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/ring"
)

// pageTable is the subset of *pagetable.Table the manager task drives.
type pageTable interface {
	Access(pageID int, op memtier.Op)
}

// offsetMapper resolves a client's request into a global page_id using the
// per-client base offsets fixed at init.
type offsetMapper interface {
	GlobalPageID(clientID, pageOffset int) int
}

// scanLoop is anything that runs until its context is cancelled; both
// *scanner.Scanner and the periodic metrics loop satisfy it.
type scanLoop interface {
	Run(ctx context.Context) error
}

// Server owns the shared shutdown flag and the three long-lived tasks.
// A shared bool guarded by a mutex tracks whether every client has sent
// END; the context cancellation layered on top of it exists purely to
// give errgroup a signal for stopping the scanner and periodic-metrics
// goroutines.
type Server struct {
	buf     *ring.Buffer
	table   pageTable
	mapper  offsetMapper
	scanner scanLoop
	metrics scanLoop
	log     zerolog.Logger

	numClients int

	mu       sync.Mutex
	done     []bool
	shutdown bool
}

// New builds a Server with numClients producers expected to each push
// exactly one END request before completion.
func New(buf *ring.Buffer, table pageTable, mapper offsetMapper, scanner, metrics scanLoop,
	numClients int, log zerolog.Logger) *Server {
	return &Server{
		buf:        buf,
		table:      table,
		mapper:     mapper,
		scanner:    scanner,
		metrics:    metrics,
		numClients: numClients,
		done:       make([]bool, numClients),
		log:        log.With().Str("component", "server").Logger(),
	}
}

// IsShutdown reports whether every client has signaled END.
func (s *Server) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Run drives the manager, scanner, and periodic-metrics tasks until every
// client has pushed an END request, then cancels the other two tasks and
// returns. The first task to return an error aborts the whole group, per
// errgroup.Group's contract.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.runManager(ctx)
		cancel()
		return nil
	})
	g.Go(func() error { return s.scanner.Run(ctx) })
	g.Go(func() error { return s.metrics.Run(ctx) })

	return g.Wait()
}

// runManager pops requests and dispatches them to the page table until
// every client has signaled END. Popping an empty buffer sleeps for
// ring.SpinBackoff before retrying.
func (s *Server) runManager(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, ok := s.buf.Pop()
		if !ok {
			time.Sleep(ring.SpinBackoff())
			continue
		}

		if req.Operation == memtier.End {
			s.markDone(req.ClientID)
			if s.IsShutdown() {
				return
			}
			continue
		}

		pageID := s.mapper.GlobalPageID(req.ClientID, req.PageOffset)
		s.table.Access(pageID, req.Operation)
	}
}

func (s *Server) markDone(clientID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clientID < 0 || clientID >= len(s.done) {
		s.log.Error().Int("client_id", clientID).Msg("END from unknown client_id")
		return
	}
	s.done[clientID] = true
	for _, d := range s.done {
		if !d {
			return
		}
	}
	s.shutdown = true
}
