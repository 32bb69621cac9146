// Package tier implements the Tier Allocator: it hands out page-aligned
// virtual regions pinned to a physical memory tier, relocates individual
// pages between tiers, and advises the OS to back a region with huge pages.
//
// Allocation failure is fatal to the caller (the process cannot continue
// without its backing memory); a single page's migration failure is
// reported to the caller but never panics — the page table decides whether
// to leave the entry untouched.
package tier

import (
	"fmt"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// PageSize is the size in bytes of a single tracked page.
const PageSize = 4096

// nodeOf maps an abstract tier to the physical NUMA node number the
// allocator binds it to. REMOTE is only meaningful when NumTiers == 3; the
// page table never calls nodeOf(Remote) in a two-tier topology.
func nodeOf(t memtier.Tier) int {
	switch t {
	case memtier.Local:
		return 0
	case memtier.Remote:
		return 1
	case memtier.Pmem:
		return 2
	default:
		panic(fmt.Sprintf("tier: unknown tier %d", t))
	}
}

// Region is a contiguous virtual memory range backed by physical pages
// pinned to a single tier's NUMA node.
type Region struct {
	Tier      memtier.Tier
	Node      int
	Bytes     []byte
	PageCount int
}

// Base returns the virtual address of the first byte of the region.
func (r *Region) Base() uintptr {
	if len(r.Bytes) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.Bytes[0]))
}

// PageBytes returns the byte slice backing the page at the given index
// within the region.
func (r *Region) PageBytes(pageIdx int) []byte {
	off := pageIdx * PageSize
	return r.Bytes[off : off+PageSize]
}

// Allocator is the Tier Allocator: it owns no state of its own beyond a
// logger, since every Region it hands out is owned by its caller (the page
// table).
type Allocator struct {
	log zerolog.Logger
}

// NewAllocator builds an Allocator that logs through the given handle.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{log: log.With().Str("component", "tier").Logger()}
}

// AllocateLocal allocates pageCount pages on node 0, zero-initialized.
// Allocation failure is fatal: the caller treats it as a ResourceError
// and aborts startup.
func (a *Allocator) AllocateLocal(pageCount int) (*Region, error) {
	return a.allocateBound(pageCount, memtier.Local, 0)
}

// AllocateBound allocates pageCount pages and binds every page to the named
// physical node, verifying placement afterward. Pages that land elsewhere
// are logged as a warning, not a failure — only an outright allocation
// refusal from the OS produces an error.
func (a *Allocator) AllocateBound(pageCount int, t memtier.Tier) (*Region, error) {
	return a.allocateBound(pageCount, t, nodeOf(t))
}

// MigratePage relocates the single page at addr from source to target,
// preserving the virtual address. A refusal from the OS is reported to the
// caller; the page table leaves the entry untouched in that case.
func (a *Allocator) MigratePage(addr uintptr, source, target memtier.Tier) error {
	return a.migratePage(addr, nodeOf(target))
}

// PromoteHuge advises the OS to back region with larger pages where
// possible. This is always best-effort and never returns an error the
// caller must act on.
func (a *Allocator) PromoteHuge(r *Region) {
	a.promoteHuge(r)
}

// TimedAccess performs the requested read or write, returning the elapsed
// time in nanoseconds; no cache line is flushed first (see timedAccess). It is
// the primitive the page table's Access operation times.
func (a *Allocator) TimedAccess(addr uintptr, length int, op memtier.Op) int64 {
	return timedAccess(addr, length, op)
}
