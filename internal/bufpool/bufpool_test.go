package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRecycleNoLeak(t *testing.T) {
	p := New(64)

	b1, err := p.Get(32)
	require.NoError(t, err)
	b1.Recycle()

	allocsBefore, _ := p.Stats()

	b2, err := p.Get(32)
	require.NoError(t, err)
	allocsAfter, hits := p.Stats()

	assert.Equal(t, allocsBefore, allocsAfter, "recycled buffer should be reused, not reallocated")
	assert.Equal(t, uint64(1), hits)
	assert.Same(t, b1, b2)
}

func TestDoubleRecycleIsSafe(t *testing.T) {
	p := New(64)
	b, err := p.Get(16)
	require.NoError(t, err)

	b.Recycle()
	b.Recycle() // must not corrupt the free list

	b2, err := p.Get(16)
	require.NoError(t, err)
	assert.Same(t, b, b2)

	// free list must be empty now; a third Get should allocate fresh.
	allocsBefore, _ := p.Stats()
	b3, err := p.Get(16)
	require.NoError(t, err)
	allocsAfter, _ := p.Stats()
	assert.Equal(t, allocsBefore+1, allocsAfter)
	assert.NotSame(t, b2, b3)
}

func TestGetRoundsUpToBaseline(t *testing.T) {
	p := New(1024)
	b, err := p.Get(16)
	require.NoError(t, err)
	assert.Equal(t, 1024, b.Cap())
}

func TestGetLargerThanBaselineAllocatesExact(t *testing.T) {
	p := New(64)
	b, err := p.Get(4096)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Cap(), 4096)
}

func TestGetNeverHandsOutSameBufferTwice(t *testing.T) {
	p := New(64)
	const n = 64
	bufs := make([]*Buffer, 0, n)
	for i := 0; i < n; i++ {
		b, err := p.Get(64)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}

	seen := make(map[*Buffer]bool, n)
	for _, b := range bufs {
		assert.False(t, seen[b], "same buffer handed out twice")
		seen[b] = true
	}

	for _, b := range bufs {
		b.Recycle()
	}
}
