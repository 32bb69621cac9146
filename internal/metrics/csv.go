package metrics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// PeriodicHeader is the fixed header row for the periodic metrics CSV.
// The Remote columns are always present; in a two-tier topology they
// simply read zero, which is the simplest header contract that still
// lets a single writer implementation serve both topologies.
var PeriodicHeader = []string{
	"Latency(ns)", "Throughput(ops/s)",
	"LocalAccess", "RemoteAccess", "PmemAccess", "TotalAccess",
	"LocalCount", "RemoteCount", "PmemCount",
}

// PeriodicWriter emits one CSV row per sampling tick: mean access latency
// over every sample retained so far (not only this interval), throughput
// over the interval since the previous tick, delta access counts per tier,
// and instantaneous occupancy per tier.
type PeriodicWriter struct {
	w          *csv.Writer
	sink       *Sink
	occupant   Occupancy
	lastTick   time.Time
	sampleRate time.Duration
}

// Occupancy is the subset of *pagetable.Table's read surface the periodic
// writer needs, kept as an interface so metrics never imports pagetable.
type Occupancy interface {
	Occupancy(t memtier.Tier) int64
}

// NewPeriodicWriter writes the header row immediately and returns a writer
// ready for repeated Tick calls, or for Run to drive at sampleRate.
func NewPeriodicWriter(dst io.Writer, sink *Sink, occupant Occupancy, start time.Time, sampleRate time.Duration) (*PeriodicWriter, error) {
	w := csv.NewWriter(dst)
	if err := w.Write(PeriodicHeader); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return &PeriodicWriter{w: w, sink: sink, occupant: occupant, lastTick: start, sampleRate: sampleRate}, nil
}

// Tick computes one row as of now and writes it, then resets the delta
// baseline for the next tick.
func (p *PeriodicWriter) Tick(now time.Time) error {
	interval := now.Sub(p.lastTick).Seconds()
	p.lastTick = now

	local := p.sink.AccessCount(memtier.Local)
	remote := p.sink.AccessCount(memtier.Remote)
	pmem := p.sink.AccessCount(memtier.Pmem)

	dLocal := local - p.sink.lastAccessCounts[memtier.Local]
	dRemote := remote - p.sink.lastAccessCounts[memtier.Remote]
	dPmem := pmem - p.sink.lastAccessCounts[memtier.Pmem]
	p.sink.lastAccessCounts = [3]uint64{local, remote, pmem}

	total := dLocal + dRemote + dPmem
	throughput := 0.0
	if interval > 0 {
		throughput = float64(total) / interval
	}

	stats := p.sink.Snapshot()

	row := []string{
		fmt.Sprintf("%.0f", stats.Mean),
		fmt.Sprintf("%.2f", throughput),
		fmt.Sprintf("%d", dLocal),
		fmt.Sprintf("%d", dRemote),
		fmt.Sprintf("%d", dPmem),
		fmt.Sprintf("%d", total),
		fmt.Sprintf("%d", p.occupant.Occupancy(memtier.Local)),
		fmt.Sprintf("%d", p.occupant.Occupancy(memtier.Remote)),
		fmt.Sprintf("%d", p.occupant.Occupancy(memtier.Pmem)),
	}
	if err := p.w.Write(row); err != nil {
		return err
	}
	p.w.Flush()
	return p.w.Error()
}

// Run ticks every sampleRate until ctx is cancelled, satisfying the
// server package's scanLoop interface for the periodic-metrics task.
func (p *PeriodicWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.sampleRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := p.Tick(now); err != nil {
				return err
			}
		}
	}
}

// CDFHeader is the fixed header row for the final latency-CDF CSV.
var CDFHeader = []string{"percentile", "latency_ns"}

// WriteCDF renders the final access-latency distribution: a Min row, one
// row per configured quantile in ascending order, a Max row, and a Mean
// row. Migration latency is tracked separately and never appears here.
func WriteCDF(dst io.Writer, sink *Sink) error {
	w := csv.NewWriter(dst)
	if err := w.Write(CDFHeader); err != nil {
		return err
	}

	stats := sink.Snapshot()
	if err := w.Write([]string{"Min", fmt.Sprintf("%d", stats.Min)}); err != nil {
		return err
	}

	quantiles := append([]float64(nil), sink.Quantiles()...)
	sort.Float64s(quantiles)
	for _, q := range quantiles {
		label := fmt.Sprintf("P%d", int(q*100))
		if err := w.Write([]string{label, fmt.Sprintf("%d", stats.Quantiles[q])}); err != nil {
			return err
		}
	}

	if err := w.Write([]string{"Max", fmt.Sprintf("%d", stats.Max)}); err != nil {
		return err
	}
	if err := w.Write([]string{"Mean", fmt.Sprintf("%.2f", stats.Mean)}); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
