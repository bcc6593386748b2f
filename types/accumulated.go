package types

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/holiman/uint256"

	"github.com/mmrnode/mmrnode/internal/mmr"
	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	storeproto "github.com/mmrnode/mmrnode/proto/mmrnode/store"
)

// AccumulatedHeaderData is what a header adds to the chain it extends: its
// hash, the running kernel offset and the accumulated proof of work per
// algorithm. It is derived from exactly one header and the data of its
// parent.
type AccumulatedHeaderData struct {
	Hash                         tmbytes.HexBytes `json:"hash"`
	TotalKernelOffset            tmbytes.HexBytes `json:"total_kernel_offset"`
	AchievedDifficulty           Difficulty       `json:"achieved_difficulty"`
	TargetDifficulty             Difficulty       `json:"target_difficulty"`
	AccumulatedSha3xDifficulty   *uint256.Int     `json:"accumulated_sha3x_difficulty"`
	AccumulatedBlake2bDifficulty *uint256.Int     `json:"accumulated_blake2b_difficulty"`
	// TotalAccumulatedDifficulty is the product of the per algorithm
	// accumulated difficulties, so neither algorithm can outweigh the other.
	TotalAccumulatedDifficulty *uint256.Int `json:"total_accumulated_difficulty"`
}

// GenesisAccumulatedData returns the data of the genesis header.
func GenesisAccumulatedData(genesis *BlockHeader) *AccumulatedHeaderData {
	return &AccumulatedHeaderData{
		Hash:                         genesis.Hash(),
		TotalKernelOffset:            genesis.TotalKernelOffset,
		AchievedDifficulty:           MinDifficulty,
		TargetDifficulty:             MinDifficulty,
		AccumulatedSha3xDifficulty:   uint256.NewInt(1),
		AccumulatedBlake2bDifficulty: uint256.NewInt(1),
		TotalAccumulatedDifficulty:   uint256.NewInt(1),
	}
}

// NewAccumulatedHeaderData extends prev with header. The header must already
// have been checked; the only possible error is a malformed kernel offset.
func NewAccumulatedHeaderData(
	prev *AccumulatedHeaderData,
	header *BlockHeader,
	achieved, target Difficulty,
) (*AccumulatedHeaderData, error) {
	offset, err := AddScalars(prev.TotalKernelOffset, header.TotalKernelOffset)
	if err != nil {
		return nil, fmt.Errorf("total kernel offset: %w", err)
	}

	sha3x := new(uint256.Int).Set(prev.AccumulatedSha3xDifficulty)
	blake := new(uint256.Int).Set(prev.AccumulatedBlake2bDifficulty)
	switch header.Pow.Algo {
	case PowAlgoSha3x:
		sha3x = saturatingAdd(sha3x, achieved.Uint256())
	case PowAlgoBlake2b:
		blake = saturatingAdd(blake, achieved.Uint256())
	default:
		return nil, header.Pow.Algo.ValidateBasic()
	}

	total, overflow := new(uint256.Int).MulOverflow(sha3x, blake)
	if overflow {
		total = new(uint256.Int).SetAllOne()
	}

	return &AccumulatedHeaderData{
		Hash:                         header.Hash(),
		TotalKernelOffset:            offset,
		AchievedDifficulty:           achieved,
		TargetDifficulty:             target,
		AccumulatedSha3xDifficulty:   sha3x,
		AccumulatedBlake2bDifficulty: blake,
		TotalAccumulatedDifficulty:   total,
	}, nil
}

func saturatingAdd(a, b *uint256.Int) *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return sum
}

func (d *AccumulatedHeaderData) ToProto() *storeproto.AccumulatedHeaderData {
	if d == nil {
		return nil
	}
	return &storeproto.AccumulatedHeaderData{
		Hash:                         d.Hash,
		TotalKernelOffset:            d.TotalKernelOffset,
		AchievedDifficulty:           uint64(d.AchievedDifficulty),
		TargetDifficulty:             uint64(d.TargetDifficulty),
		AccumulatedSha3xDifficulty:   u256Bytes(d.AccumulatedSha3xDifficulty),
		AccumulatedBlake2bDifficulty: u256Bytes(d.AccumulatedBlake2bDifficulty),
		TotalAccumulatedDifficulty:   u256Bytes(d.TotalAccumulatedDifficulty),
	}
}

func AccumulatedHeaderDataFromProto(pd *storeproto.AccumulatedHeaderData) (*AccumulatedHeaderData, error) {
	if pd == nil {
		return nil, errors.New("nil AccumulatedHeaderData")
	}
	return &AccumulatedHeaderData{
		Hash:                         pd.Hash,
		TotalKernelOffset:            pd.TotalKernelOffset,
		AchievedDifficulty:           Difficulty(pd.AchievedDifficulty),
		TargetDifficulty:             Difficulty(pd.TargetDifficulty),
		AccumulatedSha3xDifficulty:   new(uint256.Int).SetBytes(pd.AccumulatedSha3xDifficulty),
		AccumulatedBlake2bDifficulty: new(uint256.Int).SetBytes(pd.AccumulatedBlake2bDifficulty),
		TotalAccumulatedDifficulty:   new(uint256.Int).SetBytes(pd.TotalAccumulatedDifficulty),
	}, nil
}

func u256Bytes(v *uint256.Int) []byte {
	if v == nil {
		return nil
	}
	b := v.Bytes32()
	return b[:]
}

// ChainHeader is a header together with its accumulated data.
type ChainHeader struct {
	Header      *BlockHeader           `json:"header"`
	Accumulated *AccumulatedHeaderData `json:"accumulated"`
}

func (ch *ChainHeader) Height() uint64 {
	return ch.Header.Height
}

func (ch *ChainHeader) Hash() tmbytes.HexBytes {
	return ch.Accumulated.Hash
}

// ValidateBasic checks that the accumulated data belongs to the header.
func (ch *ChainHeader) ValidateBasic() error {
	if ch == nil || ch.Header == nil || ch.Accumulated == nil {
		return errors.New("incomplete chain header")
	}
	if !bytes.Equal(ch.Accumulated.Hash, ch.Header.Hash()) {
		return fmt.Errorf("accumulated data hash %v does not match header hash %v",
			ch.Accumulated.Hash, ch.Header.Hash())
	}
	return nil
}

func (ch *ChainHeader) ToProto() *storeproto.ChainHeader {
	if ch == nil {
		return nil
	}
	return &storeproto.ChainHeader{
		Header:      ch.Header.ToProto(),
		Accumulated: ch.Accumulated.ToProto(),
	}
}

func ChainHeaderFromProto(pc *storeproto.ChainHeader) (*ChainHeader, error) {
	if pc == nil {
		return nil, errors.New("nil ChainHeader")
	}
	h, err := BlockHeaderFromProto(pc.Header)
	if err != nil {
		return nil, err
	}
	acc, err := AccumulatedHeaderDataFromProto(pc.Accumulated)
	if err != nil {
		return nil, err
	}
	ch := &ChainHeader{Header: h, Accumulated: acc}
	return ch, ch.ValidateBasic()
}

// BlockAccumulatedData holds the accumulator summaries after a block: the
// pruned kernel, output and range proof MMRs, the output deletion bitmap and
// the running commitment sums.
type BlockAccumulatedData struct {
	Kernels     *mmr.PrunedHashSet
	Outputs     *mmr.PrunedHashSet
	RangeProofs *mmr.PrunedHashSet
	Deleted     *bitset.BitSet
	KernelSum   *CommitmentSum
	UtxoSum     *CommitmentSum
}

func prunedToProto(s *mmr.PrunedHashSet) *storeproto.PrunedHashSet {
	if s == nil {
		return &storeproto.PrunedHashSet{}
	}
	return &storeproto.PrunedHashSet{Size: s.Size, Peaks: s.Peaks}
}

func prunedFromProto(ps *storeproto.PrunedHashSet) *mmr.PrunedHashSet {
	if ps == nil {
		return &mmr.PrunedHashSet{}
	}
	return &mmr.PrunedHashSet{Size: ps.Size, Peaks: ps.Peaks}
}

func (d *BlockAccumulatedData) ToProto() *storeproto.BlockAccumulatedData {
	kernelSum, utxoSum := d.KernelSum, d.UtxoSum
	if kernelSum == nil {
		kernelSum = new(CommitmentSum)
	}
	if utxoSum == nil {
		utxoSum = new(CommitmentSum)
	}
	return &storeproto.BlockAccumulatedData{
		Kernels:     prunedToProto(d.Kernels),
		Outputs:     prunedToProto(d.Outputs),
		RangeProofs: prunedToProto(d.RangeProofs),
		Deleted:     mmr.EncodeBitmap(d.Deleted),
		KernelSum:   kernelSum.Bytes(),
		UtxoSum:     utxoSum.Bytes(),
	}
}

func BlockAccumulatedDataFromProto(pd *storeproto.BlockAccumulatedData) (*BlockAccumulatedData, error) {
	if pd == nil {
		return nil, errors.New("nil BlockAccumulatedData")
	}
	kernelSum, err := CommitmentSumFromBytes(pd.KernelSum)
	if err != nil {
		return nil, fmt.Errorf("kernel sum: %w", err)
	}
	utxoSum, err := CommitmentSumFromBytes(pd.UtxoSum)
	if err != nil {
		return nil, fmt.Errorf("utxo sum: %w", err)
	}
	deleted, err := mmr.DecodeBitmap(pd.Deleted)
	if err != nil {
		return nil, fmt.Errorf("deleted bitmap: %w", err)
	}
	return &BlockAccumulatedData{
		Kernels:     prunedFromProto(pd.Kernels),
		Outputs:     prunedFromProto(pd.Outputs),
		RangeProofs: prunedFromProto(pd.RangeProofs),
		Deleted:     deleted,
		KernelSum:   kernelSum,
		UtxoSum:     utxoSum,
	}, nil
}
