package types

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
)

// PowAlgorithm identifies the proof-of-work hash function a header was mined
// with.
type PowAlgorithm uint32

const (
	PowAlgoSha3x PowAlgorithm = iota
	PowAlgoBlake2b
)

// PowAlgorithms lists every supported algorithm.
var PowAlgorithms = []PowAlgorithm{PowAlgoSha3x, PowAlgoBlake2b}

func (a PowAlgorithm) String() string {
	switch a {
	case PowAlgoSha3x:
		return "sha3x"
	case PowAlgoBlake2b:
		return "blake2b"
	default:
		return fmt.Sprintf("PowAlgorithm(%d)", uint32(a))
	}
}

// ValidateBasic rejects unknown algorithms.
func (a PowAlgorithm) ValidateBasic() error {
	switch a {
	case PowAlgoSha3x, PowAlgoBlake2b:
		return nil
	default:
		return fmt.Errorf("unknown proof of work algorithm %d", uint32(a))
	}
}

// ProofOfWork carries the algorithm and any algorithm specific data of a
// mined header.
type ProofOfWork struct {
	Algo PowAlgorithm `json:"algo"`
	Data []byte       `json:"data"`
}

func (p ProofOfWork) ToProto() *typesproto.ProofOfWork {
	return &typesproto.ProofOfWork{Algo: uint32(p.Algo), Data: p.Data}
}

func ProofOfWorkFromProto(pp *typesproto.ProofOfWork) ProofOfWork {
	if pp == nil {
		return ProofOfWork{}
	}
	return ProofOfWork{Algo: PowAlgorithm(pp.Algo), Data: pp.Data}
}

// Difficulty is the expected number of hashes needed to find a proof of work.
type Difficulty uint64

const (
	// MinDifficulty is the difficulty of the easiest possible hash.
	MinDifficulty Difficulty = 1
	MaxDifficulty Difficulty = math.MaxUint64
)

var u256Max = new(uint256.Int).SetAllOne()

// DifficultyFromHash returns the difficulty achieved by a proof-of-work hash,
// read as a big-endian 256 bit number: max / hash, capped at MaxDifficulty.
func DifficultyFromHash(hash []byte) Difficulty {
	h := new(uint256.Int).SetBytes(hash)
	if h.IsZero() {
		return MaxDifficulty
	}
	d := new(uint256.Int).Div(u256Max, h)
	if !d.IsUint64() {
		return MaxDifficulty
	}
	if v := d.Uint64(); v > 0 {
		return Difficulty(v)
	}
	return MinDifficulty
}

// Uint256 returns d as a 256 bit integer.
func (d Difficulty) Uint256() *uint256.Int {
	return uint256.NewInt(uint64(d))
}
