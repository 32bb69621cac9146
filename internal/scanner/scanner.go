// Package scanner implements the Scanner/Policy task: the periodic cursor
// walk that classifies pages and requests migrations.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/policy"
)

// NextTier implements the promotion/demotion matrix as a pure function,
// independently testable against the matrix and its num_tiers-dependent
// branches. The bool result is false when status dictates staying put,
// in which case the returned tier is meaningless.
func NextTier(tier memtier.Tier, status policy.Status, numTiers int) (memtier.Tier, bool) {
	switch tier {
	case memtier.Local:
		switch status {
		case policy.Hot, policy.Warm:
			return tier, false
		case policy.Cold:
			if numTiers == 3 {
				return memtier.Remote, true
			}
			return memtier.Pmem, true
		}
	case memtier.Remote:
		switch status {
		case policy.Hot:
			return memtier.Local, true
		case policy.Cold:
			return memtier.Pmem, true
		case policy.Warm:
			return tier, false
		}
	case memtier.Pmem:
		switch status {
		case policy.Hot:
			return memtier.Local, true
		case policy.Cold:
			return tier, false
		case policy.Warm:
			if numTiers == 3 {
				return memtier.Remote, true
			}
			return memtier.Local, true
		}
	}
	return tier, false
}

// pageTable is the subset of *pagetable.Table the scanner drives, kept as an
// interface so this package never imports pagetable and stays independently
// testable with a fake.
type pageTable interface {
	Size() int
	NumTiers() int
	ScanNext() int
	GetMetadata(pageID int) memtier.Metadata
	Migrate(pageID int, target memtier.Tier) error
	PromoteHugeAll()
}

// Scanner owns the classification strategy and drives the cursor walk in
// Run, one page per loop iteration.
type Scanner struct {
	table        pageTable
	strategy     policy.Strategy
	scanInterval time.Duration
	log          zerolog.Logger
}

// New builds a Scanner bound to table, classifying with strategy and
// sleeping scanInterval after each full wrap.
func New(table pageTable, strategy policy.Strategy, scanInterval time.Duration, log zerolog.Logger) *Scanner {
	return &Scanner{
		table:        table,
		strategy:     strategy,
		scanInterval: scanInterval,
		log:          log.With().Str("component", "scanner").Logger(),
	}
}

// Run drives the scan loop until ctx is cancelled. Each iteration pulls
// the next page, classifies it, and migrates it if the classification
// calls for a tier change; shutdown is polled once per iteration, with
// the scan-interval sleep only at cursor wrap so a hot loop stays
// responsive within a single iteration's worth of work.
func (s *Scanner) Run(ctx context.Context) error {
	n := s.table.Size()
	if n == 0 {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pageID := s.table.ScanNext()
		meta := s.table.GetMetadata(pageID)
		nowMs := time.Now().UnixMilli()
		status := s.strategy.Classify(nowMs, meta.LastAccessEpochMs, meta.AccessCount)

		if target, shouldMove := NextTier(meta.Tier, status, s.table.NumTiers()); shouldMove {
			if err := s.table.Migrate(pageID, target); err != nil {
				s.log.Debug().Err(err).Int("page_id", pageID).Msg("migration request declined")
			}
		}

		if pageID == n-1 {
			s.table.PromoteHugeAll()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.scanInterval):
			}
		}
	}
}
