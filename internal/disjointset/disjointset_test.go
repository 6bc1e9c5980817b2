package disjointset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnionFind(t *testing.T) {
	t.Parallel()

	s := New(6)
	require.Equal(t, 6, s.Len())

	assert.True(t, s.Union(0, 1))
	assert.True(t, s.Union(2, 3))
	assert.True(t, s.Union(1, 3))
	assert.False(t, s.Union(0, 2), "already connected")

	assert.True(t, s.Connected(0, 3))
	assert.False(t, s.Connected(0, 4))
	assert.Equal(t, 4, s.ComponentSize(2))
	assert.Equal(t, 1, s.ComponentSize(5))
}

func TestComponentsOrdering(t *testing.T) {
	t.Parallel()

	var s Set
	for i := 0; i < 5; i++ {
		s.Add()
	}
	s.Union(4, 1)
	s.Union(3, 0)

	got := s.Components()
	want := [][]int{{0, 3}, {1, 4}, {2}}
	assert.Equal(t, want, got)
}

func TestFindCompressesLongChains(t *testing.T) {
	t.Parallel()

	s := New(1000)
	for i := 1; i < 1000; i++ {
		s.Union(i-1, i)
	}
	root := s.Find(999)
	for i := 0; i < 1000; i++ {
		require.Equal(t, root, s.Find(i))
	}
	assert.Equal(t, 1000, s.ComponentSize(0))
	assert.Len(t, s.Components(), 1)
}
