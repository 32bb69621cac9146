package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

type fakeOccupancy struct{ local, remote, pmem int64 }

func (f fakeOccupancy) Occupancy(t memtier.Tier) int64 {
	switch t {
	case memtier.Local:
		return f.local
	case memtier.Remote:
		return f.remote
	case memtier.Pmem:
		return f.pmem
	default:
		return 0
	}
}

func TestRecordAccessCountsPerTier(t *testing.T) {
	s := New(nil)
	s.RecordAccess(memtier.Local, 100)
	s.RecordAccess(memtier.Local, 200)
	s.RecordAccess(memtier.Pmem, 50)

	if got := s.AccessCount(memtier.Local); got != 2 {
		t.Fatalf("expected 2 local accesses, got %d", got)
	}
	if got := s.AccessCount(memtier.Pmem); got != 1 {
		t.Fatalf("expected 1 pmem access, got %d", got)
	}
	if got := s.AccessCount(memtier.Remote); got != 0 {
		t.Fatalf("expected 0 remote accesses, got %d", got)
	}
}

func TestRecordMigrationAllSixEdges(t *testing.T) {
	s := New(nil)
	edges := [][2]memtier.Tier{
		{memtier.Local, memtier.Remote},
		{memtier.Remote, memtier.Local},
		{memtier.Remote, memtier.Pmem},
		{memtier.Pmem, memtier.Remote},
		{memtier.Local, memtier.Pmem},
		{memtier.Pmem, memtier.Local},
	}
	for _, e := range edges {
		s.RecordMigration(e[0], e[1], 10)
	}
	for _, e := range edges {
		if got := s.MigrationCount(e[0], e[1]); got != 1 {
			t.Fatalf("edge %v: expected count 1, got %d", e, got)
		}
	}
}

func TestSnapshotMinMaxMean(t *testing.T) {
	s := New(nil)
	for _, v := range []int64{10, 20, 30, 40, 50} {
		s.RecordAccess(memtier.Local, v)
	}
	stats := s.Snapshot()
	if stats.Min != 10 {
		t.Fatalf("expected min 10, got %d", stats.Min)
	}
	if stats.Max != 50 {
		t.Fatalf("expected max 50, got %d", stats.Max)
	}
	if stats.Mean != 30 {
		t.Fatalf("expected mean 30, got %v", stats.Mean)
	}
}

func TestRecordMigrationDoesNotPolluteAccessLatency(t *testing.T) {
	s := New(nil)
	s.RecordAccess(memtier.Local, 10)
	s.RecordAccess(memtier.Local, 20)
	s.RecordMigration(memtier.Local, memtier.Remote, 1_000_000)

	stats := s.Snapshot()
	if stats.Max != 20 {
		t.Fatalf("expected access-latency max to ignore migration sample, got %d", stats.Max)
	}

	mstats := s.MigrationSnapshot()
	if mstats.Max != 1_000_000 {
		t.Fatalf("expected migration-latency max 1000000, got %d", mstats.Max)
	}
}

func TestPeriodicWriterHeaderAndRow(t *testing.T) {
	s := New(nil)
	s.RecordAccess(memtier.Local, 100)
	s.RecordAccess(memtier.Remote, 200)

	occ := fakeOccupancy{local: 3, remote: 1, pmem: 0}
	var buf bytes.Buffer
	start := time.Unix(0, 0)
	w, err := NewPeriodicWriter(&buf, s, occ, start, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Tick(start.Add(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Latency(ns),Throughput(ops/s),LocalAccess") {
		t.Fatalf("unexpected header: %q", lines[0])
	}
}

func TestWriteCDFFormat(t *testing.T) {
	s := New([]float64{0.5})
	for _, v := range []int64{1, 2, 3, 4, 5} {
		s.RecordAccess(memtier.Local, v)
	}
	var buf bytes.Buffer
	if err := WriteCDF(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "percentile,latency_ns\n") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "Min,1") {
		t.Fatalf("expected Min row, got %q", out)
	}
	if !strings.Contains(out, "Max,5") {
		t.Fatalf("expected Max row, got %q", out)
	}
	if !strings.Contains(out, "P50,3") {
		t.Fatalf("expected P50 row, got %q", out)
	}
}
