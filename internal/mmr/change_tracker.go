package mmr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// ChangeTracker adds revision control to a MutableMMR. Pushes and deletions
// accumulate in an uncommitted delta until Commit turns them into a
// checkpoint. The tracked tree is always the base with every checkpoint
// replayed on top, so any earlier commit can be restored.
type ChangeTracker struct {
	base        *MutableMMR
	mmr         *MutableMMR
	checkpoints CheckpointStore

	additions [][]byte
	deletions *bitset.BitSet
}

// NewChangeTracker builds the tracked tree from base and every checkpoint
// already in the store. base is never modified.
func NewChangeTracker(base *MutableMMR, checkpoints CheckpointStore) (*ChangeTracker, error) {
	ct := &ChangeTracker{
		base:        base,
		checkpoints: checkpoints,
	}
	if err := ct.Reset(); err != nil {
		return nil, err
	}
	return ct, nil
}

// Push appends a leaf to the uncommitted delta.
func (ct *ChangeTracker) Push(hash []byte) (uint64, error) {
	idx, err := ct.mmr.Push(hash)
	if err != nil {
		return 0, err
	}
	ct.additions = append(ct.additions, hash)
	return idx, nil
}

// Delete marks a leaf deleted in the uncommitted delta. It returns false if
// the leaf does not exist or is already deleted.
func (ct *ChangeTracker) Delete(leafIndex uint64) (bool, error) {
	ok, err := ct.mmr.Delete(leafIndex)
	if err != nil || !ok {
		return ok, err
	}
	ct.deletions.Set(uint(leafIndex))
	return true, nil
}

// Commit stores the uncommitted delta as a new checkpoint.
func (ct *ChangeTracker) Commit() error {
	leaves, err := ct.mmr.LeafCount()
	if err != nil {
		return err
	}
	cp := NewMerkleCheckpoint(ct.additions, ct.deletions, leaves)
	if err := ct.checkpoints.Push(cp); err != nil {
		return err
	}
	ct.clearDelta()
	return nil
}

// Reset discards the uncommitted delta.
func (ct *ChangeTracker) Reset() error {
	count, err := ct.checkpoints.Len()
	if err != nil {
		return err
	}
	return ct.Replay(count)
}

// Rewind drops the last stepsBack checkpoints.
func (ct *ChangeTracker) Rewind(stepsBack int) error {
	count, err := ct.checkpoints.Len()
	if err != nil {
		return err
	}
	if stepsBack < 0 || stepsBack > count {
		return fmt.Errorf("rewinding %d of %d checkpoints: %w", stepsBack, count, ErrInvalidRewind)
	}
	return ct.Replay(count - stepsBack)
}

// Replay rebuilds the tree from the base and the first n checkpoints, which
// become the only ones kept. The result depends only on the base and those
// checkpoints.
func (ct *ChangeTracker) Replay(n int) error {
	count, err := ct.checkpoints.Len()
	if err != nil {
		return err
	}
	if n < 0 || n > count {
		return fmt.Errorf("replaying %d of %d checkpoints: %w", n, count, ErrInvalidRewind)
	}
	if err := ct.checkpoints.Truncate(n); err != nil {
		return err
	}

	m := ct.base.Clone()
	if err := applyCheckpoints(ct.checkpoints, m, 0, n); err != nil {
		return err
	}
	ct.mmr = m
	ct.clearDelta()
	return nil
}

// RewindToStart drops every checkpoint, returning to the base.
func (ct *ChangeTracker) RewindToStart() error {
	return ct.Replay(0)
}

func (ct *ChangeTracker) clearDelta() {
	ct.additions = nil
	ct.deletions = bitset.New(0)
}

// Root returns the root of the tracked tree, including uncommitted changes.
func (ct *ChangeTracker) Root() ([]byte, error) {
	return ct.mmr.Root()
}

func (ct *ChangeTracker) LeafCount() (uint64, error) {
	return ct.mmr.LeafCount()
}

// GetLeafStatus returns the hash of a leaf and whether it is deleted.
func (ct *ChangeTracker) GetLeafStatus(leafIndex uint64) ([]byte, bool, error) {
	return ct.mmr.LeafStatus(leafIndex)
}

// Deleted returns a copy of the deletion bitmap of the tracked tree.
func (ct *ChangeTracker) Deleted() *bitset.BitSet {
	return ct.mmr.Deleted()
}

func (ct *ChangeTracker) CheckpointCount() (int, error) {
	return ct.checkpoints.Len()
}

func (ct *ChangeTracker) GetCheckpoint(index int) (*MerkleCheckpoint, error) {
	return ct.checkpoints.Get(index)
}

// GenerateProof returns an inclusion proof against the tree root, which
// ignores deletions.
func (ct *ChangeTracker) GenerateProof(leafIndex uint64) (*MerkleProof, error) {
	return ct.mmr.MMR().GenerateProof(leafIndex)
}
