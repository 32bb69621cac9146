// Package pagetable implements the Page Table: the component that owns
// every tracked page's metadata and backing memory, serves timed accesses,
// and performs physical migrations between tiers.
package pagetable

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/clockring"
	"github.com/tieredmem/tieredmem/internal/memtier"
	"github.com/tieredmem/tieredmem/internal/metrics"
	"github.com/tieredmem/tieredmem/internal/tier"
)

// ClientShape is a single client's requested page count per tier, fixed at
// init. Index order always matches memtier.Local, memtier.Remote,
// memtier.Pmem; the Remote field is ignored (must be zero) when the table
// is built with NumTiers == 2.
type ClientShape struct {
	Local  int
	Remote int
	Pmem   int
}

func (c ClientShape) total() int { return c.Local + c.Remote + c.Pmem }

func (c ClientShape) forTier(t memtier.Tier) int {
	switch t {
	case memtier.Local:
		return c.Local
	case memtier.Remote:
		return c.Remote
	case memtier.Pmem:
		return c.Pmem
	default:
		return 0
	}
}

// entry is one page's metadata and backing-memory descriptor. address and
// length never change after Init; tier, lastAccess, and accessCount are
// updated atomically by concurrent accessors and the scanner/migrator.
type entry struct {
	address     uintptr
	length      int
	tier        atomic.Int32
	lastAccess  atomic.Int64
	accessCount atomic.Uint64
	clockHandle atomic.Int32 // clockring.Handle + 1; 0 means "no node"
}

func (e *entry) loadTier() memtier.Tier { return memtier.Tier(e.tier.Load()) }
func (e *entry) storeTier(t memtier.Tier) { e.tier.Store(int32(t)) }

func (e *entry) loadClockHandle() (clockring.Handle, bool) {
	v := e.clockHandle.Load()
	if v == 0 {
		return 0, false
	}
	return clockring.Handle(v - 1), true
}

func (e *entry) storeClockHandle(h clockring.Handle, present bool) {
	if !present {
		e.clockHandle.Store(0)
		return
	}
	e.clockHandle.Store(int32(h) + 1)
}

// cacheTier is the tier the optional Clock Ring tracks. The fastest tier
// plays the role of "cache tier" here: it is the one pages are evicted from
// under capacity pressure, which is exactly what the CLOCK hand is for.
const cacheTier = memtier.Local

// Table is the Page Table. It owns every PageEntry and every tier's backing
// region; the Clock Ring it optionally drives holds only back-references.
type Table struct {
	entries []entry

	numTiers    int
	capacity    [3]int
	occupancy   [3]atomic.Int64
	regions     [3]*tier.Region
	allocator   *tier.Allocator
	enableRing  bool
	clockRing   *clockring.Ring
	cursor      int
	clientBase  []int // clientBase[i] is client i's first global page_id
	metrics     *metrics.Sink
	log         zerolog.Logger
}

// Init allocates one backing region per configured tier and populates every
// PageEntry in per-client, per-tier order: local, then remote when
// NumTiers==3, then pmem.
func Init(clients []ClientShape, capacities [3]int, numTiers int, enableCacheRing bool,
	allocator *tier.Allocator, sink *metrics.Sink, log zerolog.Logger) (*Table, error) {

	if numTiers != 2 && numTiers != 3 {
		return nil, memtier.NewConfigError("num-tiers must be 2 or 3, got %d", numTiers)
	}

	var totals [3]int
	for _, c := range clients {
		if numTiers == 2 && c.Remote != 0 {
			return nil, memtier.NewConfigError("client requests REMOTE pages in a two-tier topology")
		}
		totals[memtier.Local] += c.Local
		totals[memtier.Remote] += c.Remote
		totals[memtier.Pmem] += c.Pmem
	}
	for t := 0; t < len(totals); t++ {
		if totals[t] > capacities[t] {
			return nil, memtier.NewConfigError("memory allocation exceeds %s limit: %d requested, %d available",
				memtier.TierName(memtier.Tier(t), numTiers), totals[t], capacities[t])
		}
	}

	tb := &Table{
		numTiers:   numTiers,
		capacity:   capacities,
		allocator:  allocator,
		enableRing: enableCacheRing,
		metrics:    sink,
		log:        log.With().Str("component", "pagetable").Logger(),
	}

	for t := 0; t < len(capacities); t++ {
		if capacities[t] == 0 || (numTiers == 2 && memtier.Tier(t) == memtier.Remote) {
			continue
		}
		var region *tier.Region
		var err error
		if memtier.Tier(t) == memtier.Local {
			region, err = allocator.AllocateLocal(capacities[t])
		} else {
			region, err = allocator.AllocateBound(capacities[t], memtier.Tier(t))
		}
		if err != nil {
			return nil, err
		}
		tb.regions[t] = region
	}

	if enableCacheRing {
		tb.clockRing = clockring.New(capacities[cacheTier])
	}

	n := 0
	for _, c := range clients {
		n += c.total()
	}
	tb.entries = make([]entry, n)

	var offset [3]int
	idx := 0
	nowMs := nowMillis()
	tb.clientBase = make([]int, len(clients))
	for ci, c := range clients {
		tb.clientBase[ci] = idx
		order := [3]memtier.Tier{memtier.Local, memtier.Remote, memtier.Pmem}
		for _, t := range order {
			count := c.forTier(t)
			for i := 0; i < count; i++ {
				region := tb.regions[t]
				addr := region.Base() + uintptr(offset[t]*tier.PageSize)
				e := &tb.entries[idx]
				e.address = addr
				e.length = tier.PageSize
				e.storeTier(t)
				e.lastAccess.Store(nowMs)
				e.accessCount.Store(0)
				if enableCacheRing && t == cacheTier {
					h, ok := tb.clockRing.Insert(idx)
					e.storeClockHandle(h, ok)
				}
				offset[t]++
				idx++
			}
		}
		tb.occupancy[memtier.Local].Add(int64(c.Local))
		tb.occupancy[memtier.Remote].Add(int64(c.Remote))
		tb.occupancy[memtier.Pmem].Add(int64(c.Pmem))
	}

	return tb, nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// GlobalPageID maps an AccessRequest's client-relative page_offset_in_client
// to the dense global page_id, using the per-client base offsets fixed at
// Init. An out-of-range clientID returns -1.
func (t *Table) GlobalPageID(clientID, pageOffset int) int {
	if clientID < 0 || clientID >= len(t.clientBase) {
		return -1
	}
	return t.clientBase[clientID] + pageOffset
}

// Size returns N, the number of tracked pages.
func (t *Table) Size() int { return len(t.entries) }

// NumTiers returns the configured tier count (2 or 3).
func (t *Table) NumTiers() int { return t.numTiers }

// Occupancy returns the current page count resident in tier ti. Readers may
// observe a value that is momentarily stale relative to an in-flight
// migration; this is acceptable for the periodic metrics writer, which
// reports it as an instantaneous sample.
func (t *Table) Occupancy(ti memtier.Tier) int64 { return t.occupancy[ti].Load() }

// Capacity returns the configured capacity of tier ti.
func (t *Table) Capacity(ti memtier.Tier) int { return t.capacity[ti] }

// GetMetadata returns a snapshot of page_id's tier, last-access timestamp,
// and access count. An out-of-range id is logged and a zeroed tuple is
// returned.
func (t *Table) GetMetadata(pageID int) memtier.Metadata {
	if pageID < 0 || pageID >= len(t.entries) {
		t.log.Error().Err(&memtier.OutOfRangeError{PageID: pageID, Size: len(t.entries)}).Msg("get_metadata out of range")
		return memtier.Metadata{}
	}
	e := &t.entries[pageID]
	return memtier.Metadata{
		Tier:              e.loadTier(),
		LastAccessEpochMs: e.lastAccess.Load(),
		AccessCount:       e.accessCount.Load(),
	}
}

// Access performs a timed read or write on page_id's backing memory,
// updates its last-access and access-count metadata, marks it referenced
// in the cache ring if resident there, and feeds its latency to the
// metrics sink. An out-of-range id is logged and dropped without side
// effects.
func (t *Table) Access(pageID int, op memtier.Op) {
	if pageID < 0 || pageID >= len(t.entries) {
		t.log.Error().Err(&memtier.OutOfRangeError{PageID: pageID, Size: len(t.entries)}).Msg("access out of range")
		return
	}
	e := &t.entries[pageID]

	// Step 1: flush + timed physical access.
	elapsedNs := t.allocator.TimedAccess(e.address, e.length, op)

	// Step 2-3: metadata; relaxed ordering is sufficient since no other
	// field's write depends on these being visible together.
	e.lastAccess.Store(nowMillis())
	e.accessCount.Add(1)

	// Step 4: mark referenced in the cache ring, if resident there.
	currentTier := e.loadTier()
	if t.enableRing && currentTier == cacheTier {
		if h, ok := e.loadClockHandle(); ok {
			t.clockRing.MarkReferenced(h)
		}
	}

	// Step 5: feed metrics.
	if t.metrics != nil {
		t.metrics.RecordAccess(currentTier, elapsedNs)
	}
}

// Migrate relocates page_id to targetTier: checks the target's capacity,
// performs the physical move, updates tier/metadata and occupancy counts,
// and updates cache-ring membership. Migrating to the current tier is a
// no-op that touches nothing, including access_count and
// last_access_epoch_ms. A full target tier or an out-of-range id is
// logged and skipped.
func (t *Table) Migrate(pageID int, targetTier memtier.Tier) error {
	if pageID < 0 || pageID >= len(t.entries) {
		err := &memtier.OutOfRangeError{PageID: pageID, Size: len(t.entries)}
		t.log.Error().Err(err).Msg("migrate out of range")
		return err
	}
	e := &t.entries[pageID]
	current := e.loadTier()
	if current == targetTier {
		return nil
	}
	if t.occupancy[targetTier].Load() >= int64(t.capacity[targetTier]) {
		err := &memtier.TargetFullError{PageID: pageID, Target: targetTier}
		t.log.Warn().Err(err).Msg("migration skipped")
		return err
	}

	start := time.Now()
	if err := t.allocator.MigratePage(e.address, current, targetTier); err != nil {
		t.log.Warn().Err(err).Int("page_id", pageID).Msg("migration skipped")
		return err
	}
	elapsedNs := time.Since(start).Nanoseconds()

	e.storeTier(targetTier)
	e.lastAccess.Store(nowMillis())
	e.accessCount.Store(0)

	t.occupancy[current].Add(-1)
	t.occupancy[targetTier].Add(1)

	if t.enableRing {
		if current == cacheTier {
			if h, ok := e.loadClockHandle(); ok {
				t.clockRing.Remove(h)
			}
			e.storeClockHandle(0, false)
		}
		if targetTier == cacheTier {
			if h, ok := t.clockRing.Insert(pageID); ok {
				e.storeClockHandle(h, true)
			}
		}
	}

	if t.metrics != nil {
		t.metrics.RecordMigration(current, targetTier, elapsedNs)
	}
	return nil
}

// ScanNext returns the next page_id in round-robin cursor order, wrapping
// back to zero after N-1. It is called only from the single scanner task.
func (t *Table) ScanNext() int {
	if len(t.entries) == 0 {
		return 0
	}
	id := t.cursor
	t.cursor = (t.cursor + 1) % len(t.entries)
	return id
}

// PromoteHugeAll asks the allocator to back every tier's region with huge
// pages, best-effort.
func (t *Table) PromoteHugeAll() {
	for i := range t.regions {
		if t.regions[i] != nil {
			t.allocator.PromoteHuge(t.regions[i])
		}
	}
}
