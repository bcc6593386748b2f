package factory

import (
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/types"
)

// GenesisTimestamp is the timestamp of the test genesis block.
const GenesisTimestamp uint64 = 1_600_000_000

// GenesisBlock returns the deterministic genesis block every test chain
// starts from.
func GenesisBlock() *types.Block {
	body := &types.AggregateBody{
		Outputs: []*types.TransactionOutput{MakeOutput("genesis", 0)},
		Kernels: []*types.TransactionKernel{MakeKernel(0, "genesis", 0)},
	}
	block, err := store.NewGenesisBlock(GenesisTimestamp, types.PowAlgoSha3x, body)
	if err != nil {
		panic(err)
	}
	return block
}
