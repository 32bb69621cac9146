package clockring

import "testing"

func TestInsertRemove(t *testing.T) {
	r := New(4)
	h1, ok := r.Insert(10)
	if !ok {
		t.Fatal("insert should succeed below capacity")
	}
	h2, ok := r.Insert(20)
	if !ok {
		t.Fatal("insert should succeed below capacity")
	}
	if r.Size() != 2 {
		t.Fatalf("expected size 2, got %d", r.Size())
	}
	r.Remove(h1)
	if r.Size() != 1 {
		t.Fatalf("expected size 1 after remove, got %d", r.Size())
	}
	r.Remove(h2)
	if r.Size() != 0 {
		t.Fatalf("expected size 0, got %d", r.Size())
	}
}

func TestInsertFailsAtCapacity(t *testing.T) {
	r := New(2)
	if _, ok := r.Insert(1); !ok {
		t.Fatal("expected success")
	}
	if _, ok := r.Insert(2); !ok {
		t.Fatal("expected success")
	}
	if _, ok := r.Insert(3); ok {
		t.Fatal("expected failure at capacity")
	}
}

// TestFindVictimTerminatesAndShrinks verifies the testable property from
// spec.md §8: find_victim on a non-empty ring terminates in at most
// 2*size iterations and decreases the ring's size by one.
func TestFindVictimTerminatesAndShrinks(t *testing.T) {
	r := New(8)
	handles := make([]Handle, 0, 5)
	for i := 0; i < 5; i++ {
		h, ok := r.Insert(i)
		if !ok {
			t.Fatal("insert should succeed")
		}
		handles = append(handles, h)
	}
	// Insert already set every node's bit, so find_victim must clear a full
	// pass before landing on an unset bit; marking every other node again
	// keeps those bits set.
	for i, h := range handles {
		if i%2 == 0 {
			r.MarkReferenced(h)
		}
	}

	before := r.Size()
	victim, ok := r.FindVictim()
	if !ok {
		t.Fatal("expected a victim on a non-empty ring")
	}
	if victim < 0 || victim >= 5 {
		t.Fatalf("victim %d not among inserted page ids", victim)
	}
	if r.Size() != before-1 {
		t.Fatalf("expected size to shrink by one: before=%d after=%d", before, r.Size())
	}
}

func TestFindVictimOnEmptyRing(t *testing.T) {
	r := New(4)
	if _, ok := r.FindVictim(); ok {
		t.Fatal("expected no victim on an empty ring")
	}
}

func TestMarkReferencedProtectsFromEviction(t *testing.T) {
	r := New(2)
	h1, _ := r.Insert(100)
	// Insert sets referenced=true already; clear it to simulate one scan
	// pass having already passed over it once.
	r.nodes[h1].referenced.Store(false)
	h2, _ := r.Insert(200)
	r.MarkReferenced(h2)

	// The hand starts at h1 (oldest insert becomes head when ring was
	// empty); h1's bit is clear so it should be evicted first.
	victim, ok := r.FindVictim()
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim != 100 {
		t.Fatalf("expected unreferenced page 100 evicted first, got %d", victim)
	}
}
