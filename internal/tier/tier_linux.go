//go:build linux

package tier

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// maxNumaNodes bounds the bitmask passed to mbind; real systems rarely
// exceed a few dozen nodes and this simulator never models more than three
// tiers, so a single machine word of nodemask bits is ample.
const maxNumaNodes = 64

func nodemask(node int) [1]uint64 {
	var mask [1]uint64
	mask[0] = 1 << uint(node)
	return mask
}

// allocateBound mmaps an anonymous, zero-initialized region of pageCount
// pages and binds it to node via mbind(MPOL_BIND). It then verifies
// placement with move_pages (a nil-nodes status query) and logs a warning,
// rather than failing, for any page that landed on a different node.
func (a *Allocator) allocateBound(pageCount int, t memtier.Tier, node int) (*Region, error) {
	if pageCount <= 0 {
		return &Region{Tier: t, Node: node}, nil
	}
	length := pageCount * PageSize
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, &memtier.ResourceError{Tier: t, Reason: fmt.Sprintf("mmap %d bytes: %v", length, err)}
	}

	mask := nodemask(node)
	addr := uintptr(unsafe.Pointer(&data[0]))
	_, _, errno := unix.Syscall6(unix.SYS_MBIND, addr, uintptr(length),
		uintptr(unix.MPOL_BIND), uintptr(unsafe.Pointer(&mask[0])), maxNumaNodes, unix.MPOL_MF_MOVE)
	if errno != 0 {
		// mbind commonly fails under test sandboxes and single-node VMs
		// (EPERM/ENOSYS); this is not a fatal ResourceError because the
		// region itself was allocated successfully, only its placement
		// is uncertain — fall through to the post-hoc verification,
		// which will simply log that every page landed elsewhere.
		a.log.Warn().Err(errno).Int("node", node).Msg("mbind failed; pages may not land on requested node")
	}

	r := &Region{Tier: t, Node: node, Bytes: data, PageCount: pageCount}
	a.verifyPlacement(r)
	return r, nil
}

// verifyPlacement samples every page's residency via move_pages and warns
// (without failing) about any page that is not on the requested node.
func (a *Allocator) verifyPlacement(r *Region) {
	if r.PageCount == 0 {
		return
	}
	pages := make([]unsafe.Pointer, r.PageCount)
	for i := 0; i < r.PageCount; i++ {
		pages[i] = unsafe.Pointer(&r.PageBytes(i)[0])
	}
	status := make([]int32, r.PageCount)
	_, _, errno := unix.Syscall6(unix.SYS_MOVE_PAGES, 0, uintptr(r.PageCount),
		uintptr(unsafe.Pointer(&pages[0])), 0, uintptr(unsafe.Pointer(&status[0])), 0)
	if errno != 0 {
		a.log.Debug().Err(errno).Msg("move_pages status query unavailable; skipping placement verification")
		return
	}
	misplaced := 0
	for _, s := range status {
		if s >= 0 && int(s) != r.Node {
			misplaced++
		}
	}
	if misplaced > 0 {
		a.log.Warn().Int("misplaced", misplaced).Int("total", r.PageCount).Int("node", r.Node).
			Msg("some pages did not land on the requested NUMA node")
	}
}

// migratePage uses move_pages with a single target node to relocate the
// page containing addr, preserving the virtual address.
func (a *Allocator) migratePage(addr uintptr, node int) error {
	pages := [1]unsafe.Pointer{unsafe.Pointer(addr)}
	nodes := [1]int32{int32(node)}
	status := [1]int32{0}
	_, _, errno := unix.Syscall6(unix.SYS_MOVE_PAGES, 0, 1,
		uintptr(unsafe.Pointer(&pages[0])), uintptr(unsafe.Pointer(&nodes[0])),
		uintptr(unsafe.Pointer(&status[0])), unix.MPOL_MF_MOVE)
	if errno != 0 {
		return &memtier.TransientMigrationError{Reason: fmt.Sprintf("move_pages: %v", errno)}
	}
	return nil
}

// promoteHuge advises the kernel to collapse the region into huge pages.
// This is always best-effort: madvise failures are logged and ignored.
func (a *Allocator) promoteHuge(r *Region) {
	if len(r.Bytes) == 0 {
		return
	}
	if err := unix.Madvise(r.Bytes, unix.MADV_HUGEPAGE); err != nil {
		a.log.Debug().Err(err).Str("tier", r.Tier.String()).Msg("huge page promotion not available")
	}
}
