package mmr

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the size of every node hash in bytes.
const HashSize = blake2b.Size256

// Hash returns the Blake2b-256 digest of the concatenation of data.
func Hash(data ...[]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// hashParent commits to the one-based position of the parent so a node hash
// can never be replayed at another position.
func hashParent(parentPos uint64, left, right []byte) []byte {
	var pos [8]byte
	binary.LittleEndian.PutUint64(pos[:], parentPos+1)
	return Hash(pos[:], left, right)
}

// bagPeaks combines the peak hashes into the root of an MMR with size nodes.
func bagPeaks(size uint64, peaks [][]byte) []byte {
	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], size)
	data := make([][]byte, 0, len(peaks)+1)
	data = append(data, sz[:])
	data = append(data, peaks...)
	return Hash(data...)
}
