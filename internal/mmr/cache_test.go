package mmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type cacheFixture struct {
	tracker *ChangeTracker
	store   *MemCheckpointStore
	cache   *Cache
	leaves  int
}

func newCacheFixture(t require.TestingT, histLen int) *cacheFixture {
	tracker, store := newTracker(t)
	cache, err := NewCache(NewMutableMMR(NewMemBackend()), store, CacheConfig{RewindHistLen: histLen})
	require.NoError(t, err)
	return &cacheFixture{tracker: tracker, store: store, cache: cache}
}

func (f *cacheFixture) commit(t require.TestingT, pushes int, deletes ...int) {
	for i := 0; i < pushes; i++ {
		_, err := f.tracker.Push(leafHash(f.leaves))
		require.NoError(t, err)
		f.leaves++
	}
	for _, d := range deletes {
		_, err := f.tracker.Delete(uint64(d))
		require.NoError(t, err)
	}
	require.NoError(t, f.tracker.Commit())
}

func (f *cacheFixture) rewind(t require.TestingT, steps int) {
	require.NoError(t, f.tracker.Rewind(steps))
	count, err := f.store.Len()
	require.NoError(t, err)
	f.cache.Truncated(count)
	leaves, err := f.tracker.LeafCount()
	require.NoError(t, err)
	f.leaves = int(leaves)
}

func (f *cacheFixture) merge(t require.TestingT, k int) {
	_, err := MergeCheckpoints(f.store, k)
	require.NoError(t, err)
	f.cache.CheckpointsMerged(k)
}

// assertConverged checks the cache against the tracker and a cache built
// from scratch over the same store.
func (f *cacheFixture) assertConverged(t require.TestingT) {
	require.NoError(t, f.cache.Update())
	want := mustRoot(t, f.tracker)
	require.Equal(t, want, mustRoot(t, f.cache))

	fresh, err := NewCache(NewMutableMMR(NewMemBackend()), f.store, f.cache.config)
	require.NoError(t, err)
	require.Equal(t, want, mustRoot(t, fresh))
}

func TestCacheUpdatePaths(t *testing.T) {
	f := newCacheFixture(t, 3)
	f.assertConverged(t)

	// grow past the history length so the base is extended
	for i := 0; i < 8; i++ {
		f.commit(t, 2)
		f.assertConverged(t)
	}
	baseIdx, currIdx := f.cache.Indices()
	assert.Equal(t, 5, baseIdx)
	assert.Equal(t, 8, currIdx)

	// shrink but stay above the base
	f.rewind(t, 2)
	f.assertConverged(t)
	baseIdx, currIdx = f.cache.Indices()
	assert.Equal(t, 5, baseIdx)
	assert.Equal(t, 6, currIdx)

	// rewind and commit again before the cache sees the store
	f.rewind(t, 1)
	f.commit(t, 1, 0)
	f.assertConverged(t)

	// shrink below the base
	f.rewind(t, 4)
	f.assertConverged(t)
	baseIdx, currIdx = f.cache.Indices()
	assert.Equal(t, 0, baseIdx)
	assert.Equal(t, 2, currIdx)
}

func TestCacheCheckpointsMergedKeepsRoot(t *testing.T) {
	f := newCacheFixture(t, 4)
	for i := 0; i < 10; i++ {
		f.commit(t, 1)
	}
	f.assertConverged(t)
	before := mustRoot(t, f.cache)

	f.merge(t, 4)
	assert.Equal(t, before, mustRoot(t, f.cache))
	baseIdx, currIdx := f.cache.Indices()
	assert.Equal(t, 3, baseIdx)
	assert.Equal(t, 7, currIdx)
	f.assertConverged(t)
	assert.Equal(t, before, mustRoot(t, f.cache))

	// merging into the current range forces a rebuild
	f.merge(t, 6)
	f.assertConverged(t)
	assert.Equal(t, before, mustRoot(t, f.cache))
}

func TestCacheFetchLeaf(t *testing.T) {
	f := newCacheFixture(t, 2)
	f.commit(t, 3)
	f.commit(t, 3, 1)
	f.commit(t, 2, 4)
	f.commit(t, 1)
	require.NoError(t, f.cache.Update())

	baseIdx, _ := f.cache.Indices()
	require.Equal(t, 2, baseIdx)

	for i := 0; i < f.leaves; i++ {
		hash, deleted, err := f.cache.FetchLeaf(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, leafHash(i), hash, "leaf %d", i)
		assert.Equal(t, i == 1 || i == 4, deleted, "leaf %d", i)
	}

	_, _, err := f.cache.FetchLeaf(uint64(f.leaves))
	assert.ErrorIs(t, err, ErrInvalidLeafIndex)

	assert.True(t, f.cache.Deleted().Test(4))
	count, err := f.cache.LeafCount()
	require.NoError(t, err)
	assert.EqualValues(t, f.leaves, count)
}

func TestCacheConverges(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newCacheFixture(t, rapid.IntRange(0, 5).Draw(t, "hist").(int))

		ops := rapid.IntRange(1, 40).Draw(t, "ops").(int)
		for i := 0; i < ops; i++ {
			count, err := f.store.Len()
			if err != nil {
				t.Fatal(err)
			}
			switch op := rapid.IntRange(0, 5).Draw(t, "op").(int); {
			case op <= 2 || count == 0:
				var deletes []int
				if f.leaves > 0 && rapid.Bool().Draw(t, "delete").(bool) {
					deletes = append(deletes, rapid.IntRange(0, f.leaves-1).Draw(t, "idx").(int))
				}
				f.commit(t, rapid.IntRange(0, 3).Draw(t, "pushes").(int), deletes...)
			case op == 3:
				f.rewind(t, rapid.IntRange(0, count).Draw(t, "rewind").(int))
			case op == 4:
				f.merge(t, rapid.IntRange(1, count).Draw(t, "merge").(int))
			}
			if rapid.Bool().Draw(t, "update").(bool) {
				f.assertConverged(t)
			}
		}
		f.assertConverged(t)
	})
}
