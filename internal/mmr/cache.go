package mmr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// DefaultRewindHistLen is the number of trailing checkpoints kept out of the
// base tree by default.
const DefaultRewindHistLen = 1000

type CacheConfig struct {
	// RewindHistLen is how many of the latest checkpoints are replayed on
	// top of the base tree instead of being folded into it.
	RewindHistLen int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{RewindHistLen: DefaultRewindHistLen}
}

// Cache keeps the tree described by a checkpoint store ready for reads and
// cheap rewinds. It holds two trees: a full base tree built from
// checkpoints [0, baseIdx) and a pruned current tree built on a snapshot of
// the base from checkpoints [baseIdx, currIdx). baseIdx trails the
// checkpoint count by RewindHistLen, so any rewind within that window only
// rebuilds the current tree.
//
// Cache is not safe for concurrent mutation. Its owner must serialize
// Update, CheckpointsMerged and Truncated against readers.
type Cache struct {
	config      CacheConfig
	template    *MutableMMR
	checkpoints CheckpointStore

	base    *MutableMMR
	baseIdx int
	curr    *MutableMMR
	currIdx int

	// stale forces a full rebuild on the next Update.
	stale bool
	// currDirty forces a rebuild of the current tree on the next Update.
	currDirty bool
}

// NewCache builds a cache for checkpoints applied on top of template, which
// is cloned and never modified.
func NewCache(template *MutableMMR, checkpoints CheckpointStore, config CacheConfig) (*Cache, error) {
	if config.RewindHistLen < 0 {
		return nil, fmt.Errorf("negative rewind history length %d", config.RewindHistLen)
	}
	c := &Cache{
		config:      config,
		template:    template,
		checkpoints: checkpoints,
		stale:       true,
	}
	if err := c.Update(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) baseIndexFor(count int) int {
	if idx := count - c.config.RewindHistLen; idx > 0 {
		return idx
	}
	return 0
}

// Update brings the cache in line with the checkpoint store.
func (c *Cache) Update() error {
	count, err := c.checkpoints.Len()
	if err != nil {
		return err
	}

	switch {
	case c.stale || (count <= c.baseIdx && count < c.currIdx):
		return c.rebuild(count)
	case count < c.currIdx || c.currDirty:
		return c.rebuildCurrent(count)
	case count > c.currIdx:
		if next := c.baseIndexFor(count); next > c.baseIdx {
			if err := applyCheckpoints(c.checkpoints, c.base, c.baseIdx, next); err != nil {
				c.stale = true
				return err
			}
			c.baseIdx = next
			return c.rebuildCurrent(count)
		}
		if err := applyCheckpoints(c.checkpoints, c.curr, c.currIdx, count); err != nil {
			c.currDirty = true
			return err
		}
		c.currIdx = count
	}
	return nil
}

// rebuild recreates both trees from the template.
func (c *Cache) rebuild(count int) error {
	c.stale = true
	base := c.template.Clone()
	baseIdx := c.baseIndexFor(count)
	if err := applyCheckpoints(c.checkpoints, base, 0, baseIdx); err != nil {
		return err
	}
	c.base = base
	c.baseIdx = baseIdx
	if err := c.rebuildCurrent(count); err != nil {
		return err
	}
	c.stale = false
	return nil
}

// rebuildCurrent recreates the current tree from a snapshot of the base.
func (c *Cache) rebuildCurrent(count int) error {
	c.currDirty = true
	curr, err := c.base.Prune()
	if err != nil {
		return err
	}
	if err := applyCheckpoints(c.checkpoints, curr, c.baseIdx, count); err != nil {
		return err
	}
	c.curr = curr
	c.currIdx = count
	c.currDirty = false
	return nil
}

// CheckpointsMerged tells the cache that the first k checkpoints of the
// store were folded into one. The visible state does not change.
func (c *Cache) CheckpointsMerged(k int) {
	if k <= 1 {
		return
	}
	if k > c.baseIdx {
		c.stale = true
		return
	}
	c.baseIdx -= k - 1
	c.currIdx -= k - 1
}

// Truncated tells the cache that the store now keeps only its first n
// checkpoints, even if more were pushed since.
func (c *Cache) Truncated(n int) {
	if n >= c.currIdx {
		return
	}
	if n < c.baseIdx {
		c.stale = true
		return
	}
	c.currDirty = true
}

func (c *Cache) Root() ([]byte, error) {
	return c.curr.Root()
}

// MMRRoot returns the root of the current tree ignoring deletions.
func (c *Cache) MMRRoot() ([]byte, error) {
	return c.curr.MMRRoot()
}

func (c *Cache) LeafCount() (uint64, error) {
	return c.curr.LeafCount()
}

// MMRSize returns the node count of the current tree.
func (c *Cache) MMRSize() (uint64, error) {
	return c.curr.Len()
}

// Deleted returns a copy of the deletion bitmap of the current tree.
func (c *Cache) Deleted() *bitset.BitSet {
	return c.curr.Deleted()
}

// Snapshot returns the pruned summary of the current tree.
func (c *Cache) Snapshot() (*PrunedHashSet, error) {
	return c.curr.MMR().Snapshot()
}

// FetchLeaf returns the hash of a leaf and whether it is deleted. Leaves
// folded into the base are read from it since the current tree is pruned.
func (c *Cache) FetchLeaf(leafIndex uint64) ([]byte, bool, error) {
	baseLeaves, err := c.base.LeafCount()
	if err != nil {
		return nil, false, err
	}
	var hash []byte
	if leafIndex < baseLeaves {
		hash, err = c.base.MMR().LeafHash(leafIndex)
	} else {
		hash, err = c.curr.MMR().LeafHash(leafIndex)
	}
	if err != nil {
		return nil, false, err
	}
	return hash, c.base.IsDeleted(leafIndex) || c.curr.IsDeleted(leafIndex), nil
}

// Indices returns the cached base and current checkpoint indices.
func (c *Cache) Indices() (baseIdx, currIdx int) {
	return c.baseIdx, c.currIdx
}
