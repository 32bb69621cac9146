package tier

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/tieredmem/tieredmem/internal/memtier"
)

// timedAccess performs the physical read or write described by op against
// the length bytes starting at addr and returns the elapsed wall time in
// nanoseconds. Portable Go has no inline CLFLUSH; a "flush then access"
// measurement is approximated by touching the memory through a
// volatile-style unsafe pointer access bracketed by runtime.KeepAlive so
// the compiler cannot elide it, and by inserting a runtime.Gosched()
// first so a freshly scheduled goroutine does not read from a hot
// register/cache state carried over from a previous access.
func timedAccess(addr uintptr, length int, op memtier.Op) int64 {
	runtime.Gosched()
	start := time.Now()

	p := unsafe.Pointer(addr)
	switch op {
	case memtier.Write:
		b := (*byte)(p)
		*b = *b + 1
	default:
		b := (*byte)(p)
		_ = *b
	}
	// Touch the last byte too so the whole page is faulted in, not just
	// the first cache line.
	if length > 1 {
		last := (*byte)(unsafe.Pointer(addr + uintptr(length-1)))
		_ = *last
	}
	runtime.KeepAlive(p)

	return time.Since(start).Nanoseconds()
}
