package mmr

import (
	"bytes"
	"fmt"
)

// PrunedHashSet is the smallest summary of an MMR state from which new nodes
// can be appended and roots computed: the node count and the peak hashes.
type PrunedHashSet struct {
	Size  uint64
	Peaks [][]byte
}

// Equal reports whether both sets describe the same MMR state.
func (s *PrunedHashSet) Equal(o *PrunedHashSet) bool {
	if s.Size != o.Size || len(s.Peaks) != len(o.Peaks) {
		return false
	}
	for i := range s.Peaks {
		if !bytes.Equal(s.Peaks[i], o.Peaks[i]) {
			return false
		}
	}
	return true
}

// PrunedBackend holds the peaks of a historic MMR state plus every node
// appended after it. Nodes below the historic size that are not peaks are
// gone; Get reports ErrHashNotFound for them.
type PrunedBackend struct {
	offset uint64
	peaks  map[uint64][]byte
	nodes  [][]byte
}

var _ ArrayLike = (*PrunedBackend)(nil)

// NewPrunedBackend creates a backend positioned at the state described by set.
func NewPrunedBackend(set *PrunedHashSet) (*PrunedBackend, error) {
	positions := Peaks(set.Size)
	if len(positions) != len(set.Peaks) {
		return nil, fmt.Errorf("%d peaks for mmr size %d: %w", len(set.Peaks), set.Size, ErrInvalidMMRSize)
	}
	peaks := make(map[uint64][]byte, len(positions))
	for i, pos := range positions {
		peaks[pos] = set.Peaks[i]
	}
	return &PrunedBackend{offset: set.Size, peaks: peaks}, nil
}

func (b *PrunedBackend) Len() (uint64, error) {
	return b.offset + uint64(len(b.nodes)), nil
}

func (b *PrunedBackend) Push(hash []byte) (uint64, error) {
	b.nodes = append(b.nodes, hash)
	return b.offset + uint64(len(b.nodes)-1), nil
}

func (b *PrunedBackend) Get(index uint64) ([]byte, error) {
	if index >= b.offset {
		i := index - b.offset
		if i >= uint64(len(b.nodes)) {
			return nil, fmt.Errorf("node %d: %w", index, ErrHashNotFound)
		}
		return b.nodes[i], nil
	}
	if h, ok := b.peaks[index]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("node %d was pruned: %w", index, ErrHashNotFound)
}

func (b *PrunedBackend) Clear() error {
	b.offset = 0
	b.peaks = map[uint64][]byte{}
	b.nodes = nil
	return nil
}

func (b *PrunedBackend) Clone() ArrayLike {
	peaks := make(map[uint64][]byte, len(b.peaks))
	for k, v := range b.peaks {
		peaks[k] = v
	}
	nodes := make([][]byte, len(b.nodes))
	copy(nodes, b.nodes)
	return &PrunedBackend{offset: b.offset, peaks: peaks, nodes: nodes}
}
