package factory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/internal/consensus"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/types"
)

// ChainBuilder extends a chain of valid blocks on top of its own block
// store. Blocks built by different seeds never share outputs or kernels.
type ChainBuilder struct {
	t     testing.TB
	seed  string
	rules consensus.Rules
	store *store.DBStore

	blocks  []*types.Block
	headers []*types.ChainHeader
	unspent [][]byte

	algo      types.PowAlgorithm
	blockTime uint64
}

// NewChainBuilder returns a builder holding only the genesis block, using
// consensus.TestConstants.
func NewChainBuilder(t testing.TB, seed string) *ChainBuilder {
	return NewChainBuilderWithRules(t, seed, consensus.MustNewHeightRules(consensus.TestConstants()))
}

func NewChainBuilderWithRules(t testing.TB, seed string, rules consensus.Rules) *ChainBuilder {
	genesis := GenesisBlock()
	s, err := store.NewBlockStore(dbm.NewMemDB(), genesis)
	require.NoError(t, err)

	gh, err := s.FetchChainHeaderByHeight(0)
	require.NoError(t, err)

	b := &ChainBuilder{
		t:         t,
		seed:      seed,
		rules:     rules,
		store:     s,
		algo:      types.PowAlgoSha3x,
		blockTime: uint64(rules.ConstantsAt(0).PowAlgos[types.PowAlgoSha3x].TargetTime.Seconds()),
	}
	b.track(gh, genesis)
	return b
}

func (b *ChainBuilder) Store() *store.DBStore   { return b.store }
func (b *ChainBuilder) Rules() consensus.Rules  { return b.rules }
func (b *ChainBuilder) Genesis() *types.Block   { return b.blocks[0] }
func (b *ChainBuilder) Tip() *types.ChainHeader { return b.headers[len(b.headers)-1] }
func (b *ChainBuilder) Height() uint64          { return b.Tip().Height() }

// SetAlgo selects the proof-of-work algorithm of the next blocks.
func (b *ChainBuilder) SetAlgo(algo types.PowAlgorithm) *ChainBuilder {
	b.algo = algo
	return b
}

// SetBlockTime sets the timestamp increment of the next blocks.
func (b *ChainBuilder) SetBlockTime(secs uint64) *ChainBuilder {
	b.blockTime = secs
	return b
}

func (b *ChainBuilder) Block(height uint64) *types.Block {
	require.Less(b.t, height, uint64(len(b.blocks)))
	return b.blocks[height]
}

func (b *ChainBuilder) ChainHeader(height uint64) *types.ChainHeader {
	require.Less(b.t, height, uint64(len(b.headers)))
	return b.headers[height]
}

// Blocks returns the blocks in [from, to].
func (b *ChainBuilder) Blocks(from, to uint64) []*types.Block {
	require.LessOrEqual(b.t, from, to)
	require.Less(b.t, to, uint64(len(b.blocks)))
	return b.blocks[from : to+1]
}

// ChainHeaders returns the chain headers in [from, to].
func (b *ChainBuilder) ChainHeaders(from, to uint64) []*types.ChainHeader {
	require.LessOrEqual(b.t, from, to)
	require.Less(b.t, to, uint64(len(b.headers)))
	return b.headers[from : to+1]
}

// Headers returns the block headers in [from, to].
func (b *ChainBuilder) Headers(from, to uint64) []*types.BlockHeader {
	chs := b.ChainHeaders(from, to)
	headers := make([]*types.BlockHeader, len(chs))
	for i, ch := range chs {
		headers[i] = ch.Header
	}
	return headers
}

// AddBlocks extends the chain by n blocks and returns them.
func (b *ChainBuilder) AddBlocks(n int) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	for i := 0; i < n; i++ {
		blocks = append(blocks, b.NextBlock())
	}
	return blocks
}

// MakeBlock returns the next block on top of the tip without committing
// it, together with its chain header.
func (b *ChainBuilder) MakeBlock() (*types.Block, *types.ChainHeader) {
	tip := b.Tip()
	height := tip.Height() + 1

	body := &types.AggregateBody{
		Outputs: []*types.TransactionOutput{
			MakeOutput(b.seed, height, 0),
			MakeOutput(b.seed, height, 1),
		},
		Kernels: []*types.TransactionKernel{MakeKernel(height, b.seed, height)},
	}
	if len(b.unspent) > 1 {
		body.Inputs = []*types.TransactionInput{{Commitment: b.unspent[0]}}
	}
	SortBody(body)

	header := &types.BlockHeader{
		Version:   types.BlockHeaderVersion,
		Height:    height,
		PrevHash:  tip.Hash(),
		Timestamp: tip.Header.Timestamp + b.blockTime,
		Pow:       types.ProofOfWork{Algo: b.algo},
	}
	block := &types.Block{Header: header, Body: body}

	roots, err := b.store.CalculateMMRRoots(block)
	require.NoError(b.t, err)
	header.OutputMR = roots.OutputMR
	header.RangeProofMR = roots.RangeProofMR
	header.KernelMR = roots.KernelMR
	header.OutputMMRSize = roots.OutputMMRSize
	header.KernelMMRSize = roots.KernelMMRSize

	target := b.rules.ConstantsAt(height).PowAlgos[b.algo].MinDifficulty
	require.NoError(b.t, consensus.Mine(context.Background(), header, target))
	achieved, err := consensus.AchievedDifficulty(header)
	require.NoError(b.t, err)

	acc, err := types.NewAccumulatedHeaderData(tip.Accumulated, header, achieved, target)
	require.NoError(b.t, err)
	return block, &types.ChainHeader{Header: header, Accumulated: acc}
}

// NextBlock builds the next block and commits it.
func (b *ChainBuilder) NextBlock() *types.Block {
	block, ch := b.MakeBlock()
	b.commit(ch, block)
	return block
}

// Fork returns a builder that shares the chain up to height and extends it
// with blocks of its own seed.
func (b *ChainBuilder) Fork(seed string, height uint64) *ChainBuilder {
	f := NewChainBuilderWithRules(b.t, seed, b.rules)
	f.algo = b.algo
	f.blockTime = b.blockTime
	for h := uint64(1); h <= height; h++ {
		f.commit(b.ChainHeader(h), b.Block(h))
	}
	return f
}

func (b *ChainBuilder) commit(ch *types.ChainHeader, block *types.Block) {
	txn := store.NewDBTransaction().
		InsertChainHeader(ch).
		InsertBlockBody(block).
		SetBestBlock(ch.Height(), ch.Hash()).
		SetAccumulatedWork(ch.Accumulated.TotalAccumulatedDifficulty)
	require.NoError(b.t, b.store.Write(txn))
	b.track(ch, block)
}

func (b *ChainBuilder) track(ch *types.ChainHeader, block *types.Block) {
	b.headers = append(b.headers, ch)
	b.blocks = append(b.blocks, block)
	for _, in := range block.Body.Inputs {
		for i, c := range b.unspent {
			if bytes.Equal(c, in.Commitment) {
				b.unspent = append(b.unspent[:i], b.unspent[i+1:]...)
				break
			}
		}
	}
	for _, out := range block.Body.Outputs {
		b.unspent = append(b.unspent, out.Commitment)
	}
}

// Unspent returns the commitments of the unspent outputs at the tip.
func (b *ChainBuilder) Unspent() [][]byte {
	return append([][]byte(nil), b.unspent...)
}

// WriteBlocks commits the headers and bodies of blocks [from, to] of the
// builder chain into s, one transaction per block.
func (b *ChainBuilder) WriteBlocks(s store.BlockStore, from, to uint64) {
	for h := from; h <= to; h++ {
		ch := b.ChainHeader(h)
		txn := store.NewDBTransaction().
			InsertChainHeader(ch).
			InsertBlockBody(b.Block(h)).
			SetBestBlock(h, ch.Hash()).
			SetAccumulatedWork(ch.Accumulated.TotalAccumulatedDifficulty)
		require.NoError(b.t, s.Write(txn))
	}
}

// WriteHeaders commits the chain headers [from, to] into s.
func (b *ChainBuilder) WriteHeaders(s store.BlockStore, from, to uint64) {
	require.NoError(b.t, s.Write(store.NewDBTransaction().InsertChainHeaders(b.ChainHeaders(from, to))))
}

// WriteBodies commits the bodies of blocks [from, to] into s, whose header
// chain must already contain them.
func (b *ChainBuilder) WriteBodies(s store.BlockStore, from, to uint64) {
	for h := from; h <= to; h++ {
		ch := b.ChainHeader(h)
		txn := store.NewDBTransaction().
			InsertBlockBody(b.Block(h)).
			SetBestBlock(h, ch.Hash()).
			SetAccumulatedWork(ch.Accumulated.TotalAccumulatedDifficulty)
		require.NoError(b.t, s.Write(txn))
	}
}
