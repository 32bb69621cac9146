// Package workload implements the synthetic access-pattern generator that
// drives the ring buffer end to end, grounded on
// original_source/include/client/Generator.hpp's pattern set and extended
// with a zipfian pattern.
package workload

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/ring"
)

// Pattern names the access-pattern generator strategy.
type Pattern string

const (
	Uniform Pattern = "uniform"
	Hot     Pattern = "hot"
	Zipfian Pattern = "zipfian"
)

// Generator produces AccessRequest values for one client's page range and
// pushes them into the ring buffer until its running time elapses.
type Generator struct {
	clientID    int
	pageCount   int
	pattern     Pattern
	ratio       float64
	zipfS       float64
	runningTime time.Duration
	rng         *rand.Rand
	zipf        *rand.Zipf
}

// New builds a Generator for one client. pageCount is that client's total
// requested pages (the denominator of the access-pattern distribution);
// page offsets it produces are always in [0, pageCount).
func New(clientID, pageCount int, pattern Pattern, ratio, zipfS float64, runningTime time.Duration, seed int64) *Generator {
	g := &Generator{
		clientID:    clientID,
		pageCount:   pageCount,
		pattern:     pattern,
		ratio:       ratio,
		zipfS:       zipfS,
		runningTime: runningTime,
		rng:         rand.New(rand.NewSource(seed)),
	}
	if pattern == Zipfian && pageCount > 1 {
		// rand.Zipf requires s > 1; guard against a degenerate input here
		// too, even though ZipfSkewValid should have caught it at startup.
		s := zipfS
		if s <= 1 {
			s = 1.01
		}
		g.zipf = rand.NewZipf(g.rng, s, 1, uint64(pageCount-1))
	}
	return g
}

// nextOffset picks the next page offset within [0, pageCount) per the
// configured pattern.
func (g *Generator) nextOffset() int {
	if g.pageCount <= 0 {
		return 0
	}
	switch g.pattern {
	case Hot:
		r := g.rng.Float64()
		switch {
		case r < 0.7:
			return g.rng.Intn(max1(int(float64(g.pageCount) * 0.1)))
		case r < 0.9:
			lo := int(float64(g.pageCount) * 0.1)
			hi := int(float64(g.pageCount) * 0.3)
			return lo + g.rng.Intn(max1(hi-lo))
		default:
			lo := int(float64(g.pageCount) * 0.3)
			return lo + g.rng.Intn(max1(g.pageCount-lo))
		}
	case Zipfian:
		if g.zipf == nil {
			return g.rng.Intn(g.pageCount)
		}
		return int(g.zipf.Uint64())
	default: // Uniform
		return g.rng.Intn(g.pageCount)
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func (g *Generator) nextOp() memtier.Op {
	if g.rng.Float64() < g.ratio {
		return memtier.Read
	}
	return memtier.Write
}

// Run pushes access requests for g.runningTime, spinning on ring.SpinBackoff
// when the buffer is full, then pushes a single END request and returns.
// It stops early if ctx is cancelled.
func (g *Generator) Run(ctx context.Context, buf *ring.Buffer) {
	deadline := time.Now().Add(g.runningTime)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}
		req := memtier.AccessRequest{
			ClientID:   g.clientID,
			PageOffset: g.nextOffset(),
			Operation:  g.nextOp(),
		}
		buf.PushWait(req, func() bool {
			return ctx.Err() != nil || time.Now().After(deadline)
		})
	}
	buf.PushWait(memtier.AccessRequest{ClientID: g.clientID, Operation: memtier.End}, func() bool {
		return ctx.Err() != nil
	})
}

// ZipfSkewValid reports whether s falls in rand.Zipf's valid (s > 1)
// domain; exported so config validation can reject a bad --zipfs value
// eagerly, before any client generator is built.
func ZipfSkewValid(s float64) bool { return !math.IsNaN(s) && s > 1 }
