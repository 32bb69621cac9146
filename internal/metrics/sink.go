// Package metrics implements the Metrics Sink: the boundary component that
// accumulates access/migration counters and latency samples and renders
// them into the periodic and final-CDF CSV reports.
package metrics

import (
	"sync/atomic"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// edgeKey identifies one directed migration edge.
type edgeKey struct {
	from, to memtier.Tier
}

// DefaultQuantiles are the deciles the final CDF reports by default.
var DefaultQuantiles = []float64{0.10, 0.20, 0.30, 0.40, 0.50, 0.60, 0.70, 0.80, 0.90}

// Sink is the process-wide metrics accumulator. All methods are safe for
// concurrent use by the manager, scanner, and server tasks.
type Sink struct {
	accessCounts     [3]atomic.Uint64
	migrations       map[edgeKey]*atomic.Uint64
	accessLatency    *reservoir
	migrationLatency *reservoir
	quantiles        []float64

	// lastAccessCounts snapshots accessCounts at the previous periodic tick,
	// so the periodic CSV row can report deltas rather than running totals.
	lastAccessCounts [3]uint64
}

// New builds a Sink tracking all six directed migration edges and the given
// quantiles for the final latency CDF (DefaultQuantiles if nil).
func New(quantiles []float64) *Sink {
	if quantiles == nil {
		quantiles = DefaultQuantiles
	}
	s := &Sink{
		migrations:       make(map[edgeKey]*atomic.Uint64, 6),
		accessLatency:    newReservoir(),
		migrationLatency: newReservoir(),
		quantiles:        quantiles,
	}
	edges := [][2]memtier.Tier{
		{memtier.Local, memtier.Remote},
		{memtier.Remote, memtier.Local},
		{memtier.Remote, memtier.Pmem},
		{memtier.Pmem, memtier.Remote},
		{memtier.Local, memtier.Pmem},
		{memtier.Pmem, memtier.Local},
	}
	for _, e := range edges {
		s.migrations[edgeKey{e[0], e[1]}] = &atomic.Uint64{}
	}
	return s
}

// RecordAccess records one completed access on tier t with its measured
// latency in nanoseconds. This is the only latency feed the final CDF
// reads from; migration timings go through RecordMigration's own
// accumulator instead, since a move_pages syscall's duration has a very
// different scale and would swamp the access-latency distribution.
func (s *Sink) RecordAccess(t memtier.Tier, elapsedNs int64) {
	s.accessCounts[t].Add(1)
	s.accessLatency.Record(uint64(elapsedNs))
}

// RecordMigration records one completed migration along the from->to edge
// with its measured latency in nanoseconds, fed into a separate migration
// latency accumulator. An unrecognized edge (from == to, or a tier pair
// with no edge counter) is silently ignored; Migrate never calls this for
// a same-tier request.
func (s *Sink) RecordMigration(from, to memtier.Tier, elapsedNs int64) {
	c, ok := s.migrations[edgeKey{from, to}]
	if !ok {
		return
	}
	c.Add(1)
	s.migrationLatency.Record(uint64(elapsedNs))
}

// AccessCount returns the current total access count for tier t.
func (s *Sink) AccessCount(t memtier.Tier) uint64 { return s.accessCounts[t].Load() }

// MigrationCount returns the current total count along the from->to edge.
func (s *Sink) MigrationCount(from, to memtier.Tier) uint64 {
	if c, ok := s.migrations[edgeKey{from, to}]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot computes the current access-latency distribution over the
// retained sample, for the final CDF writer.
func (s *Sink) Snapshot() Stats { return s.accessLatency.Snapshot(s.quantiles) }

// MigrationSnapshot computes the current migration-latency distribution,
// kept separate from the access-latency CDF.
func (s *Sink) MigrationSnapshot() Stats { return s.migrationLatency.Snapshot(s.quantiles) }

// Quantiles reports the configured quantile list, in the order the final
// CDF writer should emit them.
func (s *Sink) Quantiles() []float64 { return s.quantiles }
