package store

import (
	"fmt"

	"github.com/holiman/uint256"

	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/types"
)

// DBTransaction is an ordered list of write operations committed as one
// unit by BlockStore.Write. Either every operation is applied or none is.
// Later operations observe the effects of earlier ones.
type DBTransaction struct {
	ops []writeOperation
}

func NewDBTransaction() *DBTransaction {
	return &DBTransaction{}
}

// Len returns the number of queued operations.
func (txn *DBTransaction) Len() int {
	return len(txn.ops)
}

func (txn *DBTransaction) String() string {
	return fmt.Sprintf("DBTransaction{%d ops}", len(txn.ops))
}

func (txn *DBTransaction) add(op writeOperation) *DBTransaction {
	txn.ops = append(txn.ops, op)
	return txn
}

// InsertChainHeader appends a header to the header chain. The header must
// extend the current header tip.
func (txn *DBTransaction) InsertChainHeader(ch *types.ChainHeader) *DBTransaction {
	return txn.add(insertChainHeaderOp{header: ch})
}

// InsertChainHeaders appends headers in order.
func (txn *DBTransaction) InsertChainHeaders(headers []*types.ChainHeader) *DBTransaction {
	for _, ch := range headers {
		txn.InsertChainHeader(ch)
	}
	return txn
}

// InsertBlockBody applies a block body on top of the current block tip. Its
// header must already be in the header chain and the resulting accumulator
// roots must match the ones the header commits to.
func (txn *DBTransaction) InsertBlockBody(block *types.Block) *DBTransaction {
	return txn.add(insertBlockBodyOp{block: block})
}

// SetBestBlock records the best block. The block body must be stored.
func (txn *DBTransaction) SetBestBlock(height uint64, hash tmbytes.HexBytes) *DBTransaction {
	return txn.add(setBestBlockOp{height: height, hash: hash})
}

// SetAccumulatedWork records the total accumulated difficulty of the best
// block.
func (txn *DBTransaction) SetAccumulatedWork(work *uint256.Int) *DBTransaction {
	return txn.add(setAccumulatedWorkOp{work: work})
}

func (txn *DBTransaction) InsertOrphan(block *types.Block) *DBTransaction {
	return txn.add(insertOrphanOp{block: block})
}

func (txn *DBTransaction) DeleteOrphan(hash tmbytes.HexBytes) *DBTransaction {
	return txn.add(deleteOrphanOp{hash: hash})
}

// RewindTipBlock removes the body of the best block, restores the
// accumulators and the best block to its parent and keeps the removed block
// as an orphan. The header stays in the header chain.
func (txn *DBTransaction) RewindTipBlock() *DBTransaction {
	return txn.add(rewindTipBlockOp{})
}

// DeleteTipHeader removes the header chain tip. Only headers without a
// stored body can be removed.
func (txn *DBTransaction) DeleteTipHeader() *DBTransaction {
	return txn.add(deleteTipHeaderOp{})
}

// MergeCheckpoints folds the oldest k checkpoints of every accumulator into
// one. Blocks covered by the merged checkpoint can no longer be rewound.
func (txn *DBTransaction) MergeCheckpoints(k int) *DBTransaction {
	return txn.add(mergeCheckpointsOp{k: k})
}

func (txn *DBTransaction) SetPruningHorizon(horizon uint64) *DBTransaction {
	return txn.add(setPruningHorizonOp{horizon: horizon})
}

type writeOperation interface {
	fmt.Stringer
	apply(wc *writeContext) error
}

type insertChainHeaderOp struct{ header *types.ChainHeader }

func (op insertChainHeaderOp) String() string {
	if op.header == nil || op.header.Header == nil {
		return "InsertChainHeader(nil)"
	}
	return fmt.Sprintf("InsertChainHeader(#%d %v)", op.header.Height(), op.header.Hash().ShortString())
}

type insertBlockBodyOp struct{ block *types.Block }

func (op insertBlockBodyOp) String() string {
	return fmt.Sprintf("InsertBlockBody(%v)", op.block)
}

type setBestBlockOp struct {
	height uint64
	hash   tmbytes.HexBytes
}

func (op setBestBlockOp) String() string {
	return fmt.Sprintf("SetBestBlock(#%d %v)", op.height, op.hash.ShortString())
}

type setAccumulatedWorkOp struct{ work *uint256.Int }

func (op setAccumulatedWorkOp) String() string {
	return fmt.Sprintf("SetAccumulatedWork(%v)", op.work.ToBig())
}

type insertOrphanOp struct{ block *types.Block }

func (op insertOrphanOp) String() string {
	return fmt.Sprintf("InsertOrphan(%v)", op.block)
}

type deleteOrphanOp struct{ hash tmbytes.HexBytes }

func (op deleteOrphanOp) String() string {
	return fmt.Sprintf("DeleteOrphan(%v)", op.hash.ShortString())
}

type rewindTipBlockOp struct{}

func (rewindTipBlockOp) String() string { return "RewindTipBlock" }

type deleteTipHeaderOp struct{}

func (deleteTipHeaderOp) String() string { return "DeleteTipHeader" }

type mergeCheckpointsOp struct{ k int }

func (op mergeCheckpointsOp) String() string {
	return fmt.Sprintf("MergeCheckpoints(%d)", op.k)
}

type setPruningHorizonOp struct{ horizon uint64 }

func (op setPruningHorizonOp) String() string {
	return fmt.Sprintf("SetPruningHorizon(%d)", op.horizon)
}
