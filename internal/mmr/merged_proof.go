package mmr

import (
	"bytes"
	"fmt"
)

// MergedProof proves the inclusion of several leaves of the same MMR at once.
// Siblings that can be computed from another merged leaf are left out, and
// once two leaves reach a common ancestor the remainder of the path is kept
// only once. Paths[i] holds the entries still needed by the i-th leaf, in the
// order they are consumed.
type MergedProof struct {
	MMRSize     uint64
	NodeIndices []uint64
	Paths       [][][]byte
	Peaks       [][]byte
}

type mergeCursor struct {
	pos  uint64
	done bool
}

// mergeWalk drives the level-by-level combination shared by MergeProofs and
// VerifyConsume. For every cursor that still climbs, step is called with the
// cursor index, the current level, the node's family and whether the sibling
// is computed by another cursor at the same level. When two cursors reach the
// same parent, the later one stops.
func mergeWalk(
	size uint64,
	nodeIndices []uint64,
	step func(i int, level int, pos, parent, sibling uint64, siblingKnown bool) error,
	reachedPeak func(i int, pos uint64) error,
) error {
	cursors := make([]mergeCursor, len(nodeIndices))
	level := make(map[uint64]struct{}, len(nodeIndices))
	for i, idx := range nodeIndices {
		if _, ok := level[idx]; ok {
			return fmt.Errorf("node %d: %w", idx, ErrDuplicateLeaf)
		}
		level[idx] = struct{}{}
		cursors[i].pos = idx
	}

	for h := 0; ; h++ {
		active := false
		next := make(map[uint64]struct{}, len(level))
		for i := range cursors {
			c := &cursors[i]
			if c.done {
				continue
			}
			if _, ok := isPeak(size, c.pos); ok {
				c.done = true
				if err := reachedPeak(i, c.pos); err != nil {
					return err
				}
				continue
			}
			parent, sibling := Family(c.pos)
			_, known := level[sibling]
			if err := step(i, h, c.pos, parent, sibling, known); err != nil {
				return err
			}
			if _, merged := next[parent]; merged {
				c.done = true
				continue
			}
			next[parent] = struct{}{}
			c.pos = parent
			active = true
		}
		if !active {
			return nil
		}
		level = next
	}
}

// localPeak returns the position of the peak above the node at pos.
func localPeak(size, pos uint64) uint64 {
	for {
		parent, sibling := Family(pos)
		if sibling >= size {
			return pos
		}
		pos = parent
	}
}

// MergeProofs combines proofs of distinct leaves of the same MMR.
func MergeProofs(proofs []*MerkleProof) (*MergedProof, error) {
	if len(proofs) == 0 {
		return nil, ErrCannotMergeZeroProofs
	}
	size := proofs[0].MMRSize
	peakPositions := Peaks(size)
	if peakPositions == nil {
		return nil, fmt.Errorf("size %d: %w", size, ErrInvalidMMRSize)
	}

	nodeIndices := make([]uint64, len(proofs))
	for i, p := range proofs {
		if p.MMRSize != size {
			return nil, ErrProofSizeMismatch
		}
		if len(p.Peaks) != len(peakPositions)-1 {
			return nil, fmt.Errorf("proof %d: %w", i, ErrInvalidProof)
		}
		nodeIndices[i] = p.NodeIndex
	}

	paths := make([][][]byte, len(proofs))
	reached := make(map[uint64]bool, len(peakPositions))

	err := mergeWalk(size, nodeIndices,
		func(i, level int, _, _, _ uint64, siblingKnown bool) error {
			if siblingKnown {
				return nil
			}
			if level >= len(proofs[i].Path) {
				return fmt.Errorf("proof %d is shorter than its local peak height: %w", i, ErrInvalidProof)
			}
			paths[i] = append(paths[i], proofs[i].Path[level])
			return nil
		},
		func(_ int, pos uint64) error {
			reached[pos] = true
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	// every peak not reached by a merged leaf is copied from the first proof
	first := proofs[0]
	firstLocal, _ := isPeak(size, localPeak(size, first.NodeIndex))
	var peaks [][]byte
	for j, pos := range peakPositions {
		if reached[pos] {
			continue
		}
		peaks = append(peaks, first.peakAt(j, firstLocal))
	}

	return &MergedProof{
		MMRSize:     size,
		NodeIndices: nodeIndices,
		Paths:       paths,
		Peaks:       peaks,
	}, nil
}

// VerifyConsume replays the merged proof for leafHashes, which must be given
// in the order of NodeIndices, and checks the result against root. Every path
// entry and peak in the proof must be consumed exactly once.
func (mp *MergedProof) VerifyConsume(root []byte, leafHashes [][]byte) error {
	if len(leafHashes) != len(mp.NodeIndices) || len(mp.Paths) != len(mp.NodeIndices) {
		return ErrLeafCountMismatch
	}
	if len(mp.NodeIndices) == 0 {
		return ErrCannotMergeZeroProofs
	}
	peakPositions := Peaks(mp.MMRSize)
	if peakPositions == nil {
		return fmt.Errorf("size %d: %w", mp.MMRSize, ErrInvalidMMRSize)
	}

	hashes := make(map[uint64][]byte, 2*len(leafHashes))
	for i, idx := range mp.NodeIndices {
		if idx >= mp.MMRSize || NodeHeight(idx) != 0 {
			return fmt.Errorf("node %d is not a leaf: %w", idx, ErrInvalidProof)
		}
		hashes[idx] = leafHashes[i]
	}

	consumed := make([]int, len(mp.Paths))
	peakHashes := make(map[uint64][]byte, len(peakPositions))

	err := mergeWalk(mp.MMRSize, mp.NodeIndices,
		func(i, _ int, pos, parent, sibling uint64, siblingKnown bool) error {
			var sib []byte
			if siblingKnown {
				sib = hashes[sibling]
			} else {
				if consumed[i] >= len(mp.Paths[i]) {
					return fmt.Errorf("path %d exhausted: %w", i, ErrInvalidProof)
				}
				sib = mp.Paths[i][consumed[i]]
				consumed[i]++
			}

			var node []byte
			if sibling < pos {
				node = hashParent(parent, sib, hashes[pos])
			} else {
				node = hashParent(parent, hashes[pos], sib)
			}
			if existing, ok := hashes[parent]; ok && !bytes.Equal(existing, node) {
				return fmt.Errorf("conflicting hashes for node %d: %w", parent, ErrInvalidProof)
			}
			hashes[parent] = node
			return nil
		},
		func(i int, pos uint64) error {
			peakHashes[pos] = hashes[pos]
			return nil
		},
	)
	if err != nil {
		return err
	}

	for i, n := range consumed {
		if n != len(mp.Paths[i]) {
			return fmt.Errorf("path %d has %d unused entries: %w", i, len(mp.Paths[i])-n, ErrInvalidProof)
		}
	}

	peaks := make([][]byte, 0, len(peakPositions))
	supplied := 0
	for _, pos := range peakPositions {
		if h, ok := peakHashes[pos]; ok {
			peaks = append(peaks, h)
			continue
		}
		if supplied >= len(mp.Peaks) {
			return fmt.Errorf("missing peak %d: %w", pos, ErrInvalidProof)
		}
		peaks = append(peaks, mp.Peaks[supplied])
		supplied++
	}
	if supplied != len(mp.Peaks) {
		return fmt.Errorf("%d unused peaks: %w", len(mp.Peaks)-supplied, ErrInvalidProof)
	}

	if !bytes.Equal(bagPeaks(mp.MMRSize, peaks), root) {
		return ErrInvalidProof
	}
	return nil
}
