package mmr

import (
	"math/bits"
)

// NodeHeight returns the height of the node at the zero-based position pos.
// Leaves have height zero.
func NodeHeight(pos uint64) uint64 {
	p := pos + 1
	for !allOnes(p) {
		// drop the left-most perfect subtree, which has 2^k - 1 nodes where k
		// is the bit length of p minus one
		p -= (uint64(1) << (bits.Len64(p) - 1)) - 1
	}
	return uint64(bits.Len64(p)) - 1
}

func allOnes(x uint64) bool {
	return x != 0 && x&(x+1) == 0
}

// SiblingOffset returns the distance between a node of height h and its
// sibling.
func SiblingOffset(h uint64) uint64 {
	return (uint64(2) << h) - 1
}

// Family returns the parent and sibling positions of the node at pos.
func Family(pos uint64) (parent, sibling uint64) {
	h := NodeHeight(pos)
	if NodeHeight(pos+1) > h {
		// right child: the parent follows immediately
		return pos + 1, pos - SiblingOffset(h)
	}
	return pos + (uint64(2) << h), pos + SiblingOffset(h)
}

// LeafPosition returns the node position of the leaf with the given index.
func LeafPosition(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

// NodeCount returns the number of nodes in an MMR holding leafCount leaves.
func NodeCount(leafCount uint64) uint64 {
	return 2*leafCount - uint64(bits.OnesCount64(leafCount))
}

// LeafCount returns the number of leaves in the largest valid MMR whose node
// count is at most size. The result, read as a bitmap, also gives the heights
// of the peaks: bit k is set when a peak of height k exists.
func LeafCount(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	pos := size
	peakSize := (uint64(1) << bits.Len64(size)) - 1
	leaves := uint64(0)
	for peakSize > 0 {
		leaves <<= 1
		if pos >= peakSize {
			pos -= peakSize
			leaves |= 1
		}
		peakSize >>= 1
	}
	return leaves
}

// IsValidSize reports whether size is the node count of some MMR.
func IsValidSize(size uint64) bool {
	return NodeCount(LeafCount(size)) == size
}

// Peaks returns the positions of the peaks of an MMR with size nodes, highest
// (left-most) first. It returns nil for an empty or invalid size.
func Peaks(size uint64) []uint64 {
	if size == 0 || !IsValidSize(size) {
		return nil
	}

	var (
		peaks  []uint64
		offset uint64
	)
	for remaining := size; remaining != 0; {
		// largest perfect subtree that still fits
		peakSize := (uint64(1) << (bits.Len64(remaining+1) - 1)) - 1
		offset += peakSize
		peaks = append(peaks, offset-1)
		remaining -= peakSize
	}
	return peaks
}

func isPeak(size, pos uint64) (int, bool) {
	for i, p := range Peaks(size) {
		if p == pos {
			return i, true
		}
	}
	return -1, false
}
