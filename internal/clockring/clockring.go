// Package clockring implements the optional CLOCK eviction-candidate
// structure maintained for a single cache tier. It is an index-based
// circular arena with a free list rather than a pointer-linked list, so
// that a PageEntry's back-reference is a plain integer handle — a
// lookup, never an ownership edge.
//
// All structural operations (Insert, Remove, FindVictim) are single-writer:
// only the scanner task calls them. MarkReferenced is called from the
// access path concurrently with the scanner and only touches a single
// relaxed-ordered flag.
package clockring

import "sync/atomic"

// Handle identifies a node in the ring. Insert issues handles starting at
// zero; a failed Insert returns the negative noHandle sentinel.
type Handle int

const noHandle Handle = -1

type node struct {
	pageID     int
	referenced atomic.Bool
	prev, next Handle
	inUse      bool
}

// Ring is a circular doubly-linked list of nodes with a "hand" that
// FindVictim advances.
type Ring struct {
	nodes    []node
	freeHead int // index into nodes of the first free slot, or -1
	hand     Handle
	size     int
	capacity int
}

// New creates a Ring with room for capacity resident pages.
func New(capacity int) *Ring {
	r := &Ring{
		nodes:    make([]node, capacity),
		hand:     noHandle,
		capacity: capacity,
	}
	r.rebuildFreeList()
	return r
}

func (r *Ring) rebuildFreeList() {
	for i := range r.nodes {
		r.nodes[i] = node{prev: noHandle, next: noHandle}
	}
	r.freeHead = 0
	for i := 0; i < len(r.nodes)-1; i++ {
		r.nodes[i].next = Handle(i + 1)
	}
	if len(r.nodes) > 0 {
		r.nodes[len(r.nodes)-1].next = noHandle
	} else {
		r.freeHead = -1
	}
}

// Size reports the number of resident nodes.
func (r *Ring) Size() int { return r.size }

// Capacity reports the configured capacity.
func (r *Ring) Capacity() int { return r.capacity }

func (r *Ring) allocNode() (Handle, bool) {
	if r.freeHead < 0 {
		return noHandle, false
	}
	h := Handle(r.freeHead)
	r.freeHead = int(r.nodes[h].next)
	r.nodes[h].inUse = true
	return h, true
}

func (r *Ring) freeNode(h Handle) {
	n := &r.nodes[h]
	*n = node{prev: noHandle, next: Handle(r.freeHead), inUse: false}
	r.freeHead = int(h)
}

// Insert adds page_id at the tail of the ring, just before the hand (the
// last position the hand reaches on its next sweep), with its reference
// bit set, and returns the handle the caller should store as the page's
// back-reference. It fails when the ring is already at capacity.
func (r *Ring) Insert(pageID int) (Handle, bool) {
	if r.size == r.capacity {
		return noHandle, false
	}
	h, ok := r.allocNode()
	if !ok {
		return noHandle, false
	}
	n := &r.nodes[h]
	n.pageID = pageID
	n.referenced.Store(true)

	if r.hand == noHandle {
		n.next, n.prev = h, h
		r.hand = h
	} else {
		tail := r.nodes[r.hand].prev
		n.prev = tail
		n.next = r.hand
		r.nodes[tail].next = h
		r.nodes[r.hand].prev = h
	}
	r.size++
	return h, true
}

// Remove unlinks the node at h. If the hand pointed to it, the hand
// advances to the next node first so FindVictim always has a valid
// starting point.
func (r *Ring) Remove(h Handle) {
	n := &r.nodes[h]
	if !n.inUse {
		return
	}
	if r.size == 1 {
		r.hand = noHandle
	} else {
		if r.hand == h {
			r.hand = n.next
		}
		r.nodes[n.prev].next = n.next
		r.nodes[n.next].prev = n.prev
	}
	r.freeNode(h)
	r.size--
}

// MarkReferenced sets the referenced bit for h with relaxed ordering. It is
// called from the access path, concurrently with the scanner's structural
// operations, and must not touch anything beyond the single atomic flag.
func (r *Ring) MarkReferenced(h Handle) {
	if h == noHandle || h < 0 || int(h) >= len(r.nodes) {
		return
	}
	r.nodes[h].referenced.Store(true)
}

// FindVictim advances the hand, clearing reference bits along the way,
// until it finds a node whose bit is unset; it removes that node and
// returns its page_id. It always terminates on a non-empty ring within at
// most 2*Size iterations (every node's bit can be cleared once before a
// second pass finds it unset).
func (r *Ring) FindVictim() (int, bool) {
	if r.size == 0 {
		return 0, false
	}
	for {
		h := r.hand
		n := &r.nodes[h]
		if n.referenced.Load() {
			n.referenced.Store(false)
			r.hand = n.next
			continue
		}
		pageID := n.pageID
		r.Remove(h)
		return pageID, true
	}
}
