package consensus

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/mmrnode/mmrnode/types"
)

// PowHasher computes the proof-of-work hash of a header for one algorithm.
type PowHasher interface {
	Algo() types.PowAlgorithm
	Hash(header *types.BlockHeader) []byte
}

func powInput(header *types.BlockHeader) []byte {
	mining := header.MiningHash()
	buf := make([]byte, 8, 8+len(mining)+len(header.Pow.Data))
	binary.LittleEndian.PutUint64(buf, header.Nonce)
	buf = append(buf, mining...)
	return append(buf, header.Pow.Data...)
}

// Sha3xHasher hashes with two rounds of SHA3-256.
type Sha3xHasher struct{}

func (Sha3xHasher) Algo() types.PowAlgorithm { return types.PowAlgoSha3x }

func (Sha3xHasher) Hash(header *types.BlockHeader) []byte {
	first := sha3.Sum256(powInput(header))
	second := sha3.Sum256(first[:])
	return second[:]
}

// Blake2bHasher hashes with Blake2b-256.
type Blake2bHasher struct{}

func (Blake2bHasher) Algo() types.PowAlgorithm { return types.PowAlgoBlake2b }

func (Blake2bHasher) Hash(header *types.BlockHeader) []byte {
	h := blake2b.Sum256(powInput(header))
	return h[:]
}

var hashers = map[types.PowAlgorithm]PowHasher{
	types.PowAlgoSha3x:   Sha3xHasher{},
	types.PowAlgoBlake2b: Blake2bHasher{},
}

// HasherFor returns the hasher of algo.
func HasherFor(algo types.PowAlgorithm) (PowHasher, error) {
	h, ok := hashers[algo]
	if !ok {
		return nil, fmt.Errorf("no hasher for %v", algo)
	}
	return h, nil
}

// AchievedDifficulty returns the difficulty the header's proof of work
// achieves.
func AchievedDifficulty(header *types.BlockHeader) (types.Difficulty, error) {
	h, err := HasherFor(header.Pow.Algo)
	if err != nil {
		return 0, err
	}
	return types.DifficultyFromHash(h.Hash(header)), nil
}

// Mine searches nonces starting at the header's current nonce until the
// header achieves target, or ctx is done.
func Mine(ctx context.Context, header *types.BlockHeader, target types.Difficulty) error {
	h, err := HasherFor(header.Pow.Algo)
	if err != nil {
		return err
	}
	for i := 0; ; i++ {
		if types.DifficultyFromHash(h.Hash(header)) >= target {
			return nil
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		header.Nonce++
	}
}
