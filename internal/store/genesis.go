package store

import (
	"github.com/mmrnode/mmrnode/types"
)

// NewGenesisBlock returns the height 0 block holding body, with the
// accumulator roots committing to it.
func NewGenesisBlock(timestamp uint64, algo types.PowAlgorithm, body *types.AggregateBody) (*types.Block, error) {
	roots, err := CalculateGenesisMMRRoots(body)
	if err != nil {
		return nil, err
	}
	header := &types.BlockHeader{
		Version:       types.BlockHeaderVersion,
		Height:        0,
		Timestamp:     timestamp,
		OutputMR:      roots.OutputMR,
		RangeProofMR:  roots.RangeProofMR,
		KernelMR:      roots.KernelMR,
		OutputMMRSize: roots.OutputMMRSize,
		KernelMMRSize: roots.KernelMMRSize,
		Pow:           types.ProofOfWork{Algo: algo},
	}
	return &types.Block{Header: header, Body: body}, nil
}
