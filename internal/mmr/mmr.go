package mmr

import (
	"fmt"
)

// MMR is an append-only Merkle Mountain Range over leaf hashes.
type MMR struct {
	backend ArrayLike
}

// New creates an MMR over the given backend, which may already hold nodes.
func New(backend ArrayLike) *MMR {
	return &MMR{backend: backend}
}

// NewPruned creates an MMR positioned at the state described by set. New
// leaves can be appended and roots computed, but historic leaves and proofs
// are not available.
func NewPruned(set *PrunedHashSet) (*MMR, error) {
	backend, err := NewPrunedBackend(set)
	if err != nil {
		return nil, err
	}
	return New(backend), nil
}

// Len returns the number of nodes.
func (m *MMR) Len() (uint64, error) {
	return m.backend.Len()
}

// LeafCount returns the number of leaves.
func (m *MMR) LeafCount() (uint64, error) {
	size, err := m.backend.Len()
	if err != nil {
		return 0, err
	}
	return LeafCount(size), nil
}

// IsEmpty reports whether no leaf was ever pushed.
func (m *MMR) IsEmpty() (bool, error) {
	size, err := m.backend.Len()
	return size == 0, err
}

// Push appends a leaf hash, adds every parent it completes and returns the
// index of the new leaf.
func (m *MMR) Push(hash []byte) (uint64, error) {
	size, err := m.backend.Len()
	if err != nil {
		return 0, err
	}
	leafIndex := LeafCount(size)

	pos, err := m.backend.Push(hash)
	if err != nil {
		return 0, err
	}

	node := hash
	for h := uint64(0); NodeHeight(pos+1) > h; h++ {
		left, err := m.backend.Get(pos - SiblingOffset(h))
		if err != nil {
			return 0, fmt.Errorf("fetching left sibling of %d: %w", pos, err)
		}
		node = hashParent(pos+1, left, node)
		if pos, err = m.backend.Push(node); err != nil {
			return 0, err
		}
	}
	return leafIndex, nil
}

// LeafHash returns the hash of the leaf with the given index.
func (m *MMR) LeafHash(leafIndex uint64) ([]byte, error) {
	count, err := m.LeafCount()
	if err != nil {
		return nil, err
	}
	if leafIndex >= count {
		return nil, fmt.Errorf("leaf %d of %d: %w", leafIndex, count, ErrInvalidLeafIndex)
	}
	return m.backend.Get(LeafPosition(leafIndex))
}

// PeakHashes returns the hashes of the peaks, left-most first.
func (m *MMR) PeakHashes() ([][]byte, error) {
	size, err := m.backend.Len()
	if err != nil {
		return nil, err
	}
	positions := Peaks(size)
	if size != 0 && positions == nil {
		return nil, fmt.Errorf("size %d: %w", size, ErrInvalidMMRSize)
	}
	peaks := make([][]byte, 0, len(positions))
	for _, pos := range positions {
		h, err := m.backend.Get(pos)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, h)
	}
	return peaks, nil
}

// Root returns the bagged hash of all peaks.
func (m *MMR) Root() ([]byte, error) {
	size, err := m.backend.Len()
	if err != nil {
		return nil, err
	}
	peaks, err := m.PeakHashes()
	if err != nil {
		return nil, err
	}
	return bagPeaks(size, peaks), nil
}

// Snapshot returns the pruned summary of the current state.
func (m *MMR) Snapshot() (*PrunedHashSet, error) {
	size, err := m.backend.Len()
	if err != nil {
		return nil, err
	}
	peaks, err := m.PeakHashes()
	if err != nil {
		return nil, err
	}
	return &PrunedHashSet{Size: size, Peaks: peaks}, nil
}

// Clear drops every node.
func (m *MMR) Clear() error {
	return m.backend.Clear()
}

// Clone returns an independent copy of the MMR.
func (m *MMR) Clone() *MMR {
	return &MMR{backend: m.backend.Clone()}
}

// Prune returns a new MMR over a pruned backend at the current state.
func (m *MMR) Prune() (*MMR, error) {
	set, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return NewPruned(set)
}
