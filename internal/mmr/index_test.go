package mmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeHeight(t *testing.T) {
	heights := []uint64{0, 0, 1, 0, 0, 1, 2, 0, 0, 1, 0, 0, 1, 2, 3, 0, 0, 1}
	for pos, want := range heights {
		assert.Equal(t, want, NodeHeight(uint64(pos)), "pos %d", pos)
	}
}

func TestFamily(t *testing.T) {
	testCases := []struct {
		pos, parent, sibling uint64
	}{
		{0, 2, 1},
		{1, 2, 0},
		{2, 6, 5},
		{5, 6, 2},
		{7, 9, 8},
		{9, 13, 12},
		{6, 14, 13},
		{13, 14, 6},
	}
	for _, tc := range testCases {
		parent, sibling := Family(tc.pos)
		assert.Equal(t, tc.parent, parent, "parent of %d", tc.pos)
		assert.Equal(t, tc.sibling, sibling, "sibling of %d", tc.pos)
	}
}

func TestLeafPositionAndCounts(t *testing.T) {
	positions := []uint64{0, 1, 3, 4, 7, 8, 10, 11, 15}
	for i, want := range positions {
		assert.Equal(t, want, LeafPosition(uint64(i)))
		assert.EqualValues(t, 0, NodeHeight(want))
	}

	for leaves := uint64(0); leaves < 300; leaves++ {
		size := NodeCount(leaves)
		require.True(t, IsValidSize(size))
		require.Equal(t, leaves, LeafCount(size))
	}

	assert.EqualValues(t, 7, LeafCount(11))
	assert.EqualValues(t, 1, LeafCount(2))
	assert.False(t, IsValidSize(2))
	assert.False(t, IsValidSize(5))
	assert.True(t, IsValidSize(4))
}

func TestPeaks(t *testing.T) {
	testCases := []struct {
		size  uint64
		peaks []uint64
	}{
		{0, nil},
		{1, []uint64{0}},
		{2, nil},
		{3, []uint64{2}},
		{4, []uint64{2, 3}},
		{7, []uint64{6}},
		{8, []uint64{6, 7}},
		{10, []uint64{6, 9}},
		{11, []uint64{6, 9, 10}},
		{19, []uint64{14, 17, 18}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.peaks, Peaks(tc.size), "size %d", tc.size)
	}
}
