//go:build !linux

package tier

import (
	"github.com/tieredmem/tieredmem/internal/memtier"
)

// allocateBound falls back to a plain heap allocation on platforms without
// mbind/move_pages. Placement cannot be verified here; every call warns
// once that NUMA binding is unavailable, the same "warn, don't fail"
// treatment a failed bind gets on Linux.
func (a *Allocator) allocateBound(pageCount int, t memtier.Tier, node int) (*Region, error) {
	if pageCount <= 0 {
		return &Region{Tier: t, Node: node}, nil
	}
	length := pageCount * PageSize
	data := make([]byte, length)
	a.log.Warn().Int("node", node).Msg("NUMA pinning unsupported on this platform; allocating unpinned memory")
	return &Region{Tier: t, Node: node, Bytes: data, PageCount: pageCount}, nil
}

// migratePage is a no-op relocation on platforms without move_pages: there
// is no physical backing to relocate, so the call always succeeds from the
// page table's point of view, exactly as a successful move_pages would.
func (a *Allocator) migratePage(addr uintptr, node int) error {
	a.log.Debug().Int("node", node).Msg("physical page migration unsupported on this platform; tier updated logically only")
	return nil
}

// promoteHuge is unavailable outside Linux; always a no-op.
func (a *Allocator) promoteHuge(r *Region) {
	a.log.Debug().Msg("huge page promotion unsupported on this platform")
}
