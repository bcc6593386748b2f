package store

import (
	"errors"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/internal/mmr"
)

func testCheckpoint(i int) *mmr.MerkleCheckpoint {
	deleted := bitset.New(0)
	if i > 0 {
		deleted.Set(uint(i - 1))
	}
	return mmr.NewMerkleCheckpoint([][]byte{mmr.Hash([]byte{byte(i)})}, deleted, uint64(i+1))
}

func TestCheckpointStoreMatchesMemoryStore(t *testing.T) {
	db := dbm.NewMemDB()
	persisted := newCheckpointStore(db, TreeOutput)
	mem := mmr.NewMemCheckpointStore()

	requireSame := func() {
		t.Helper()
		pn, err := persisted.Len()
		require.NoError(t, err)
		mn, err := mem.Len()
		require.NoError(t, err)
		require.Equal(t, mn, pn)
		for i := 0; i < mn; i++ {
			want, err := mem.Get(i)
			require.NoError(t, err)
			got, err := persisted.Get(i)
			require.NoError(t, err)
			assert.Equal(t, want.NodesAdded, got.NodesAdded)
			assert.True(t, mmr.BitmapsEqual(want.NodesDeleted, got.NodesDeleted))
			assert.Equal(t, want.AccumulatedNodesAddedCount, got.AccumulatedNodesAddedCount)
		}
	}

	for i := 0; i < 10; i++ {
		require.NoError(t, persisted.Push(testCheckpoint(i)))
		require.NoError(t, mem.Push(testCheckpoint(i)))
	}
	requireSame()

	_, err := mmr.MergeCheckpoints(persisted, 4)
	require.NoError(t, err)
	_, err = mmr.MergeCheckpoints(mem, 4)
	require.NoError(t, err)
	requireSame()

	require.NoError(t, persisted.Truncate(5))
	require.NoError(t, mem.Truncate(5))
	requireSame()

	require.NoError(t, persisted.Push(testCheckpoint(42)))
	require.NoError(t, mem.Push(testCheckpoint(42)))
	requireSame()

	// merged entries are deleted from the database
	first, count, err := persisted.bounds()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first)
	assert.Equal(t, uint64(6), count)
	for i := uint64(0); i < first; i++ {
		ok, err := db.Has(checkpointKey(TreeOutput, i))
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err = persisted.Get(6)
	assert.True(t, errors.Is(err, ErrValueNotFound))
	assert.True(t, errors.Is(persisted.ReplaceFirst(7, testCheckpoint(0)), mmr.ErrInvalidMerge))
}

func TestCheckpointStoresAreIndependentPerTree(t *testing.T) {
	db := dbm.NewMemDB()
	kernels := newCheckpointStore(db, TreeKernel)
	outputs := newCheckpointStore(db, TreeOutput)
	require.NoError(t, kernels.Push(testCheckpoint(0)))

	n, err := outputs.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOverlay(t *testing.T) {
	db := dbm.NewMemDB()
	require.NoError(t, db.Set([]byte("a"), []byte("1")))
	require.NoError(t, db.Set([]byte("b"), []byte("2")))

	o := newOverlay(db)
	require.NoError(t, o.Set([]byte("c"), []byte("3")))
	require.NoError(t, o.Delete([]byte("a")))
	require.NoError(t, o.Set([]byte("b"), nil))

	v, err := o.Get([]byte("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = o.Get([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
	ok, err := o.Has([]byte("b"))
	require.NoError(t, err)
	assert.True(t, ok, "an empty value is still a value")

	// nothing reaches the database before flush
	v, err = db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	ok, err = db.Has([]byte("c"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.Equal(t, 3, o.size())
	require.NoError(t, o.flush())
	ok, err = db.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)
	v, err = db.Get([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)
}

func TestReadOnlyKVRejectsWrites(t *testing.T) {
	kv := readOnlyKV{db: dbm.NewMemDB()}
	assert.True(t, errors.Is(kv.Set([]byte("k"), []byte("v")), ErrInvalidOperation))
	assert.True(t, errors.Is(kv.Delete([]byte("k")), ErrInvalidOperation))
}

func TestStorageErrorMatchesSentinel(t *testing.T) {
	err := storageErr("get", errors.New("disk on fire"))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Contains(t, err.Error(), "disk on fire")
	assert.NoError(t, storageErr("get", nil))
}

func TestKeysAreDistinct(t *testing.T) {
	height, err := decodeChainHeaderKey(chainHeaderKey(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)

	_, err = decodeChainHeaderKey(orphanKey([]byte("x")))
	assert.Error(t, err)

	assert.NotEqual(t, leafIndexKey(TreeKernel, []byte("h")), leafIndexKey(TreeOutput, []byte("h")))
}
