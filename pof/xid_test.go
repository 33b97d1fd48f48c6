package pof

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXIDGenerator_MonotonicAndNeverZero(t *testing.T) {
	g := NewXIDGenerator()
	require.Equal(t, uint32(1), g.Next())
	require.Equal(t, uint32(2), g.Next())
	require.Equal(t, uint32(3), g.Next())
}

func TestXIDGenerator_WrapsAtMaxXID(t *testing.T) {
	g := &XIDGenerator{base: 1, next: MaxXID}
	require.Equal(t, MaxXID, g.Next())
	require.Equal(t, uint32(1), g.Next(), "primary generator wraps back to 1, never 0")
}

func TestUserXIDGenerator_NeverCollidesWithPrimary(t *testing.T) {
	g := NewUserXIDGenerator()
	first := g.Next()
	require.GreaterOrEqual(t, first, userXIDBase)
	require.Equal(t, userXIDBase+1, g.Next())
}

func TestXIDGenerator_ConcurrentNextNeverRepeats(t *testing.T) {
	g := NewXIDGenerator()
	const n = 200
	seen := make([]uint32, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seen[i] = g.Next()
		}(i)
	}
	wg.Wait()

	unique := make(map[uint32]struct{}, n)
	for _, v := range seen {
		unique[v] = struct{}{}
	}
	require.Len(t, unique, n, "concurrent Next calls must never hand out the same id twice")
}
