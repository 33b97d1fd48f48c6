package pmdb

import "sort"

// IdAllocator hands out the smallest available id starting from a
// configurable base: a sorted free list is consulted first, falling
// back to a monotone counter, so allocation is deterministic and
// smallest-first, and a removed id always returns to the free list
// rather than being discarded.
//
// Not safe for concurrent use; callers serialize access.
type IdAllocator struct {
	base    uint32
	next    uint32
	max     uint32
	hasMax  bool
	freeIDs []uint32
}

// NewIdAllocator returns an allocator that starts handing out ids at
// base.
func NewIdAllocator(base uint32) *IdAllocator {
	return &IdAllocator{base: base, next: base}
}

// SetMax bounds the allocator so Alloc fails once both the free list is
// empty and next would exceed max.
func (a *IdAllocator) SetMax(max uint32) {
	a.max = max
	a.hasMax = true
}

// Alloc returns the smallest free id, or the next never-used id if the
// free list is empty; ok is false if the pool is exhausted.
func (a *IdAllocator) Alloc() (id uint32, ok bool) {
	if len(a.freeIDs) > 0 {
		id = a.freeIDs[0]
		a.freeIDs = a.freeIDs[1:]
		return id, true
	}
	if a.hasMax && a.next > a.max {
		return 0, false
	}
	id = a.next
	a.next++
	return id, true
}

// Remove returns id to the free list, sorted ascending so the next
// Alloc stays smallest-first and a freed id never collides with a live
// one until it is handed out again.
func (a *IdAllocator) Remove(id uint32) {
	i := sort.Search(len(a.freeIDs), func(i int) bool { return a.freeIDs[i] >= id })
	if i < len(a.freeIDs) && a.freeIDs[i] == id {
		return // already free; avoid duplicate entries
	}
	a.freeIDs = append(a.freeIDs, 0)
	copy(a.freeIDs[i+1:], a.freeIDs[i:])
	a.freeIDs[i] = id
}

// Used reports how many ids are currently allocated (i.e. not on the
// free list and below next).
func (a *IdAllocator) Used() int {
	return int(a.next-a.base) - len(a.freeIDs)
}

// FreeList returns a copy of the sorted free-id list, for tests and
// snapshotting.
func (a *IdAllocator) FreeList() []uint32 {
	out := make([]uint32, len(a.freeIDs))
	copy(out, a.freeIDs)
	return out
}
