package pmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdAllocator_SmallestFreeFirst(t *testing.T) {
	a := NewIdAllocator(1)

	id1, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, uint32(1), id1)

	id2, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, uint32(2), id2)

	id3, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, uint32(3), id3)

	a.Remove(id2)
	a.Remove(id1)

	// smallest freed id comes back first
	next, ok := a.Alloc()
	require.True(t, ok)
	require.Equal(t, id1, next)

	next, ok = a.Alloc()
	require.True(t, ok)
	require.Equal(t, id2, next)

	next, ok = a.Alloc()
	require.True(t, ok)
	require.Equal(t, uint32(4), next)
}

func TestIdAllocator_Max(t *testing.T) {
	a := NewIdAllocator(0)
	a.SetMax(1)

	_, ok := a.Alloc()
	require.True(t, ok)
	_, ok = a.Alloc()
	require.True(t, ok)

	_, ok = a.Alloc()
	require.False(t, ok, "allocator must refuse once max is exceeded")
}

func TestIdAllocator_RemoveDuplicateIsNoop(t *testing.T) {
	a := NewIdAllocator(0)
	id, _ := a.Alloc()
	a.Remove(id)
	a.Remove(id) // must not duplicate the free-list entry

	require.Equal(t, []uint32{id}, a.FreeList())
}
