package mmr

import (
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBitmapEncodingIsCanonical(t *testing.T) {
	a := bitset.New(0)
	a.Set(3).Set(70)
	b := bitset.New(1024)
	b.Set(70).Set(3)

	assert.Equal(t, EncodeBitmap(a), EncodeBitmap(b))
	assert.True(t, BitmapsEqual(a, b))
	assert.Equal(t, EncodeBitmap(nil), EncodeBitmap(bitset.New(512)))
}

func TestBitmapRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.SliceOf(rapid.UintRange(0, 5000)).Draw(t, "bits").([]uint)
		b := bitset.New(0)
		for _, i := range bits {
			b.Set(i)
		}
		decoded, err := DecodeBitmap(EncodeBitmap(b))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !BitmapsEqual(b, decoded) {
			t.Fatalf("bitmap changed after round trip")
		}
	})
}

func TestDecodeBitmapRejectsGarbage(t *testing.T) {
	_, err := DecodeBitmap([]byte{0x05, 0x01})
	require.Error(t, err)
}

func TestMutableRootCommitsToDeletions(t *testing.T) {
	m := NewMutableMMR(NewMemBackend())
	for i := 0; i < 6; i++ {
		_, err := m.Push(leafHash(i))
		require.NoError(t, err)
	}
	before, err := m.Root()
	require.NoError(t, err)
	mmrBefore, err := m.MMRRoot()
	require.NoError(t, err)

	ok, err := m.Delete(2)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.Delete(2)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = m.Delete(6)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := m.Root()
	require.NoError(t, err)
	mmrAfter, err := m.MMRRoot()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Equal(t, mmrBefore, mmrAfter)

	h, deleted, err := m.LeafStatus(2)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, leafHash(2), h)

	pruned, err := m.Prune()
	require.NoError(t, err)
	prunedRoot, err := pruned.Root()
	require.NoError(t, err)
	assert.Equal(t, after, prunedRoot)
}
