package mmr

import (
	"bytes"
	"fmt"
)

// MerkleProof proves the inclusion of one leaf in an MMR of MMRSize nodes.
// Path holds the siblings from the leaf up to its local peak, Peaks holds
// every other peak in left-to-right order.
type MerkleProof struct {
	MMRSize   uint64
	NodeIndex uint64
	Path      [][]byte
	Peaks     [][]byte
}

// GenerateProof builds the inclusion proof for the leaf with the given index.
func (m *MMR) GenerateProof(leafIndex uint64) (*MerkleProof, error) {
	size, err := m.backend.Len()
	if err != nil {
		return nil, err
	}
	if leafIndex >= LeafCount(size) {
		return nil, fmt.Errorf("leaf %d of %d: %w", leafIndex, LeafCount(size), ErrInvalidLeafIndex)
	}

	nodeIndex := LeafPosition(leafIndex)
	pos := nodeIndex
	var path [][]byte
	for {
		parent, sibling := Family(pos)
		if sibling >= size {
			// pos is the local peak
			break
		}
		h, err := m.backend.Get(sibling)
		if err != nil {
			return nil, err
		}
		path = append(path, h)
		pos = parent
	}

	var peaks [][]byte
	for _, p := range Peaks(size) {
		if p == pos {
			continue
		}
		h, err := m.backend.Get(p)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, h)
	}

	return &MerkleProof{
		MMRSize:   size,
		NodeIndex: nodeIndex,
		Path:      path,
		Peaks:     peaks,
	}, nil
}

// Verify checks that leafHash at NodeIndex, combined with the proof,
// reproduces root. It returns ErrInvalidProof on mismatch.
func (p *MerkleProof) Verify(root, leafHash []byte) error {
	if p.NodeIndex >= p.MMRSize || NodeHeight(p.NodeIndex) != 0 {
		return fmt.Errorf("node %d is not a leaf of an mmr of size %d: %w", p.NodeIndex, p.MMRSize, ErrInvalidProof)
	}
	peakPositions := Peaks(p.MMRSize)
	if peakPositions == nil {
		return fmt.Errorf("size %d: %w", p.MMRSize, ErrInvalidMMRSize)
	}

	pos, node := p.NodeIndex, leafHash
	for _, sibling := range p.Path {
		parent, siblingPos := Family(pos)
		if siblingPos >= p.MMRSize {
			return fmt.Errorf("path is longer than the local peak height: %w", ErrInvalidProof)
		}
		if siblingPos < pos {
			node = hashParent(parent, sibling, node)
		} else {
			node = hashParent(parent, node, sibling)
		}
		pos = parent
	}

	idx, ok := isPeak(p.MMRSize, pos)
	if !ok || len(p.Peaks) != len(peakPositions)-1 {
		return fmt.Errorf("computed node %d is not a peak: %w", pos, ErrInvalidProof)
	}

	peaks := make([][]byte, 0, len(peakPositions))
	peaks = append(peaks, p.Peaks[:idx]...)
	peaks = append(peaks, node)
	peaks = append(peaks, p.Peaks[idx:]...)

	if !bytes.Equal(bagPeaks(p.MMRSize, peaks), root) {
		return ErrInvalidProof
	}
	return nil
}

// peakAt returns the hash of the peak with the given position index taken
// from the proof's list of non-local peaks, or nil for the local peak.
func (p *MerkleProof) peakAt(peakIdx, localIdx int) []byte {
	switch {
	case peakIdx == localIdx:
		return nil
	case peakIdx < localIdx:
		return p.Peaks[peakIdx]
	default:
		return p.Peaks[peakIdx-1]
	}
}
