package mmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProofs(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100, 1000, 10000} {
		m := buildMMR(t, n)
		root, err := m.Root()
		require.NoError(t, err)

		step := 1
		if n > 1000 {
			step = 97
		}
		for i := 0; i < n; i += step {
			proof, err := m.GenerateProof(uint64(i))
			require.NoError(t, err)
			require.NoError(t, proof.Verify(root, leafHash(i)), "leaf %d of %d", i, n)

			assert.ErrorIs(t, proof.Verify(root, leafHash(i+1)), ErrInvalidProof)
			assert.ErrorIs(t, proof.Verify(Hash([]byte("wrong root")), leafHash(i)), ErrInvalidProof)
		}
	}
}

func TestSingleLeafProofHasEmptyPath(t *testing.T) {
	m := buildMMR(t, 1)
	proof, err := m.GenerateProof(0)
	require.NoError(t, err)
	assert.Empty(t, proof.Path)
	assert.Empty(t, proof.Peaks)

	root, err := m.Root()
	require.NoError(t, err)
	assert.NoError(t, proof.Verify(root, leafHash(0)))
}

func TestProofOutOfRange(t *testing.T) {
	m := buildMMR(t, 5)
	_, err := m.GenerateProof(5)
	assert.ErrorIs(t, err, ErrInvalidLeafIndex)
}

func TestProofTampering(t *testing.T) {
	m := buildMMR(t, 11)
	root, err := m.Root()
	require.NoError(t, err)

	proof, err := m.GenerateProof(2)
	require.NoError(t, err)
	require.NotEmpty(t, proof.Path)
	require.NotEmpty(t, proof.Peaks)

	tampered := *proof
	tampered.Path = append([][]byte{leafHash(99)}, proof.Path[1:]...)
	assert.ErrorIs(t, tampered.Verify(root, leafHash(2)), ErrInvalidProof)

	tampered = *proof
	tampered.Peaks = proof.Peaks[1:]
	assert.ErrorIs(t, tampered.Verify(root, leafHash(2)), ErrInvalidProof)

	tampered = *proof
	tampered.NodeIndex = 2
	assert.ErrorIs(t, tampered.Verify(root, leafHash(2)), ErrInvalidProof)

	tampered = *proof
	tampered.MMRSize = 20
	assert.Error(t, tampered.Verify(root, leafHash(2)))
}

func TestMergedProofs(t *testing.T) {
	m := buildMMR(t, 27)
	root, err := m.Root()
	require.NoError(t, err)

	testCases := [][]int{
		{0},
		{0, 1},
		{0, 3},
		{5, 2, 26},
		{0, 1, 2, 3, 4, 5, 6, 7},
		{10, 24, 25, 26, 3},
	}
	for _, leaves := range testCases {
		proofs := make([]*MerkleProof, 0, len(leaves))
		hashes := make([][]byte, 0, len(leaves))
		total := 0
		for _, i := range leaves {
			p, err := m.GenerateProof(uint64(i))
			require.NoError(t, err)
			proofs = append(proofs, p)
			hashes = append(hashes, leafHash(i))
			total += len(p.Path)
		}

		merged, err := MergeProofs(proofs)
		require.NoError(t, err)
		require.NoError(t, merged.VerifyConsume(root, hashes), "leaves %v", leaves)

		stored := 0
		for _, p := range merged.Paths {
			stored += len(p)
		}
		assert.LessOrEqual(t, stored, total)

		if len(leaves) > 1 {
			swapped := append([][]byte{hashes[1], hashes[0]}, hashes[2:]...)
			assert.ErrorIs(t, merged.VerifyConsume(root, swapped), ErrInvalidProof)
		}
		assert.ErrorIs(t, merged.VerifyConsume(root, hashes[1:]), ErrLeafCountMismatch)
	}
}

func TestMergedProofSharesPaths(t *testing.T) {
	m := buildMMR(t, 8)
	p0, err := m.GenerateProof(0)
	require.NoError(t, err)
	p1, err := m.GenerateProof(1)
	require.NoError(t, err)

	merged, err := MergeProofs([]*MerkleProof{p0, p1})
	require.NoError(t, err)
	// siblings of each other, so the rest of the path is stored once
	assert.Len(t, merged.Paths[0], 2)
	assert.Empty(t, merged.Paths[1])
	assert.Empty(t, merged.Peaks)
}

func TestMergeProofErrors(t *testing.T) {
	_, err := MergeProofs(nil)
	assert.ErrorIs(t, err, ErrCannotMergeZeroProofs)

	small := buildMMR(t, 4)
	big := buildMMR(t, 9)
	a, err := small.GenerateProof(0)
	require.NoError(t, err)
	b, err := big.GenerateProof(1)
	require.NoError(t, err)
	_, err = MergeProofs([]*MerkleProof{a, b})
	assert.ErrorIs(t, err, ErrProofSizeMismatch)

	_, err = MergeProofs([]*MerkleProof{a, a})
	assert.ErrorIs(t, err, ErrDuplicateLeaf)
}
