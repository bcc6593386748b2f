package mmr

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// MutableMMR is an MMR whose leaves can be marked deleted. Deletion never
// touches the tree; it flips a bit in a bitmap that the root commits to.
type MutableMMR struct {
	mmr     *MMR
	deleted *bitset.BitSet
}

func NewMutableMMR(backend ArrayLike) *MutableMMR {
	return &MutableMMR{mmr: New(backend), deleted: bitset.New(0)}
}

// NewMutableMMRWithDeleted wraps an existing MMR and deletion bitmap.
func NewMutableMMRWithDeleted(m *MMR, deleted *bitset.BitSet) *MutableMMR {
	if deleted == nil {
		deleted = bitset.New(0)
	}
	return &MutableMMR{mmr: m, deleted: deleted}
}

func (m *MutableMMR) Push(hash []byte) (uint64, error) {
	return m.mmr.Push(hash)
}

// Delete marks the leaf deleted. It returns false if the leaf does not exist
// or was already deleted.
func (m *MutableMMR) Delete(leafIndex uint64) (bool, error) {
	count, err := m.mmr.LeafCount()
	if err != nil {
		return false, err
	}
	if leafIndex >= count || m.deleted.Test(uint(leafIndex)) {
		return false, nil
	}
	m.deleted.Set(uint(leafIndex))
	return true, nil
}

func (m *MutableMMR) IsDeleted(leafIndex uint64) bool {
	return m.deleted.Test(uint(leafIndex))
}

// LeafStatus returns the hash of the leaf and whether it is deleted.
func (m *MutableMMR) LeafStatus(leafIndex uint64) ([]byte, bool, error) {
	h, err := m.mmr.LeafHash(leafIndex)
	if err != nil {
		return nil, false, err
	}
	return h, m.IsDeleted(leafIndex), nil
}

func (m *MutableMMR) LeafCount() (uint64, error) {
	return m.mmr.LeafCount()
}

func (m *MutableMMR) Len() (uint64, error) {
	return m.mmr.Len()
}

// Deleted returns a copy of the deletion bitmap.
func (m *MutableMMR) Deleted() *bitset.BitSet {
	return m.deleted.Clone()
}

// MMR exposes the underlying tree.
func (m *MutableMMR) MMR() *MMR {
	return m.mmr
}

// MMRRoot returns the root of the tree alone, ignoring deletions.
func (m *MutableMMR) MMRRoot() ([]byte, error) {
	return m.mmr.Root()
}

// Root returns the root committing to both the tree and the deletion bitmap.
func (m *MutableMMR) Root() ([]byte, error) {
	root, err := m.mmr.Root()
	if err != nil {
		return nil, err
	}
	return Hash(root, EncodeBitmap(m.deleted)), nil
}

// Clone returns an independent copy.
func (m *MutableMMR) Clone() *MutableMMR {
	return &MutableMMR{mmr: m.mmr.Clone(), deleted: m.deleted.Clone()}
}

// Prune returns a copy over a pruned backend that keeps the deletion bitmap.
func (m *MutableMMR) Prune() (*MutableMMR, error) {
	pruned, err := m.mmr.Prune()
	if err != nil {
		return nil, err
	}
	return &MutableMMR{mmr: pruned, deleted: m.deleted.Clone()}, nil
}

// Clear drops every leaf and deletion.
func (m *MutableMMR) Clear() error {
	m.deleted = bitset.New(0)
	return m.mmr.Clear()
}

// DeleteAll marks every bit of deletions as deleted.
func (m *MutableMMR) DeleteAll(deletions *bitset.BitSet) error {
	if deletions == nil {
		return nil
	}
	count, err := m.mmr.LeafCount()
	if err != nil {
		return err
	}
	for i, ok := deletions.NextSet(0); ok; i, ok = deletions.NextSet(i + 1) {
		if uint64(i) >= count {
			return fmt.Errorf("deleting leaf %d of %d: %w", i, count, ErrInvalidLeafIndex)
		}
		m.deleted.Set(i)
	}
	return nil
}
