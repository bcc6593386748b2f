package store

import (
	"bytes"
	"fmt"

	"github.com/gogo/protobuf/proto"
	gogotypes "github.com/gogo/protobuf/types"
	"github.com/holiman/uint256"

	"github.com/mmrnode/mmrnode/internal/mmr"
	storeproto "github.com/mmrnode/mmrnode/proto/mmrnode/store"
	"github.com/mmrnode/mmrnode/types"
)

// writeContext is the state shared by the operations of one transaction.
type writeContext struct {
	kv          *overlay
	checkpoints map[Tree]*checkpointStore
	// onCommit runs against the store caches once the batch is durable.
	onCommit []func(caches map[Tree]*mmr.Cache)
}

func newWriteContext(kv *overlay) *writeContext {
	wc := &writeContext{
		kv:          kv,
		checkpoints: make(map[Tree]*checkpointStore, len(Trees)),
	}
	for _, tree := range Trees {
		wc.checkpoints[tree] = newCheckpointStore(kv, tree)
	}
	return wc
}

func invalidOp(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidOperation)
}

//---------------------------------------------------------------------
// metadata and record helpers shared by reads and writes

func getUint64Meta(kv kvStore, key MetadataKey) (uint64, bool, error) {
	bz, err := kv.Get(metadataKey(key))
	if err != nil {
		return 0, false, storageErr("get metadata", err)
	}
	if bz == nil {
		return 0, false, nil
	}
	var v gogotypes.UInt64Value
	if err := proto.Unmarshal(bz, &v); err != nil {
		return 0, false, fmt.Errorf("unmarshal metadata %s: %w", key, err)
	}
	return v.Value, true, nil
}

func setUint64Meta(kv kvStore, key MetadataKey, value uint64) error {
	return kv.Set(metadataKey(key), mustEncode(&gogotypes.UInt64Value{Value: value}))
}

func getBytesMeta(kv kvStore, key MetadataKey) ([]byte, error) {
	bz, err := kv.Get(metadataKey(key))
	if err != nil {
		return nil, storageErr("get metadata", err)
	}
	if bz == nil {
		return nil, nil
	}
	var v gogotypes.BytesValue
	if err := proto.Unmarshal(bz, &v); err != nil {
		return nil, fmt.Errorf("unmarshal metadata %s: %w", key, err)
	}
	return v.Value, nil
}

func setBytesMeta(kv kvStore, key MetadataKey, value []byte) error {
	return kv.Set(metadataKey(key), mustEncode(&gogotypes.BytesValue{Value: value}))
}

func getChainHeader(kv kvStore, height uint64) (*types.ChainHeader, error) {
	bz, err := kv.Get(chainHeaderKey(height))
	if err != nil {
		return nil, storageErr("get chain header", err)
	}
	if bz == nil {
		return nil, notFound("chain header at height %d", height)
	}
	pc := new(storeproto.ChainHeader)
	if err := proto.Unmarshal(bz, pc); err != nil {
		return nil, fmt.Errorf("unmarshal chain header: %w", err)
	}
	return types.ChainHeaderFromProto(pc)
}

func getHeaderHeight(kv kvStore, hash []byte) (uint64, error) {
	bz, err := kv.Get(headerHashKey(hash))
	if err != nil {
		return 0, storageErr("get header height", err)
	}
	if bz == nil {
		return 0, notFound("header %X", hash)
	}
	var v gogotypes.UInt64Value
	if err := proto.Unmarshal(bz, &v); err != nil {
		return 0, fmt.Errorf("unmarshal header height: %w", err)
	}
	return v.Value, nil
}

func getBlockAccumulatedData(kv kvStore, hash []byte) (*types.BlockAccumulatedData, error) {
	bz, err := kv.Get(blockAccumulatedKey(hash))
	if err != nil {
		return nil, storageErr("get block accumulated data", err)
	}
	if bz == nil {
		return nil, notFound("accumulated data of block %X", hash)
	}
	pd := new(storeproto.BlockAccumulatedData)
	if err := proto.Unmarshal(bz, pd); err != nil {
		return nil, fmt.Errorf("unmarshal block accumulated data: %w", err)
	}
	return types.BlockAccumulatedDataFromProto(pd)
}

func getBodyIndex(kv kvStore, hash []byte) (*storeproto.BlockBodyIndex, error) {
	bz, err := kv.Get(blockBodyIndexKey(hash))
	if err != nil {
		return nil, storageErr("get block body", err)
	}
	if bz == nil {
		return nil, notFound("body of block %X", hash)
	}
	idx := new(storeproto.BlockBodyIndex)
	if err := proto.Unmarshal(bz, idx); err != nil {
		return nil, fmt.Errorf("unmarshal block body: %w", err)
	}
	return idx, nil
}

// headerTip returns the height of the header chain tip.
func headerTip(kv kvStore) (uint64, bool, error) {
	return getUint64Meta(kv, MetadataHeaderTipHeight)
}

// bodyTip returns the height of the last block whose body is applied. It
// follows from the checkpoint count: every block adds one checkpoint and
// merging k checkpoints moves k-1 of them into the offset.
func bodyTip(kv kvStore) (uint64, bool, error) {
	_, count, err := newCheckpointStore(kv, TreeKernel).bounds()
	if err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}
	offset, _, err := getUint64Meta(kv, MetadataCheckpointOffset)
	if err != nil {
		return 0, false, err
	}
	return offset + count - 1, true, nil
}

// fetchBlock rebuilds a stored block from its header and body index.
func fetchBlock(kv kvStore, hash []byte) (*types.Block, error) {
	height, err := getHeaderHeight(kv, hash)
	if err != nil {
		return nil, err
	}
	ch, err := getChainHeader(kv, height)
	if err != nil {
		return nil, err
	}
	idx, err := getBodyIndex(kv, hash)
	if err != nil {
		return nil, err
	}
	body := &types.AggregateBody{
		Inputs:  make([]*types.TransactionInput, 0, len(idx.Inputs)),
		Outputs: make([]*types.TransactionOutput, 0, len(idx.Outputs)),
		Kernels: make([]*types.TransactionKernel, 0, len(idx.Kernels)),
	}
	for _, c := range idx.Inputs {
		body.Inputs = append(body.Inputs, &types.TransactionInput{Commitment: c})
	}
	for _, c := range idx.Outputs {
		rec, err := getOutputRecord(kv, c)
		if err != nil {
			return nil, err
		}
		body.Outputs = append(body.Outputs, types.TransactionOutputFromProto(rec.Output))
	}
	for _, e := range idx.Kernels {
		rec, err := getKernelRecord(kv, e)
		if err != nil {
			return nil, err
		}
		body.Kernels = append(body.Kernels, types.TransactionKernelFromProto(rec.Kernel))
	}
	return &types.Block{Header: ch.Header, Body: body}, nil
}

//---------------------------------------------------------------------
// operations

func (op insertChainHeaderOp) apply(wc *writeContext) error {
	ch := op.header
	if err := ch.ValidateBasic(); err != nil {
		return invalidOp("chain header: %v", err)
	}
	height := ch.Height()
	hash := ch.Hash()

	tip, ok, err := headerTip(wc.kv)
	if err != nil {
		return err
	}
	switch {
	case !ok && height != 0:
		return invalidOp("first header must be genesis, got height %d", height)
	case ok && height != tip+1:
		return invalidOp("header %d does not extend header tip %d", height, tip)
	case ok:
		prev, err := getChainHeader(wc.kv, tip)
		if err != nil {
			return err
		}
		if !bytes.Equal(ch.Header.PrevHash, prev.Hash()) {
			return invalidOp("header %d does not link to header tip %v", height, prev.Hash())
		}
	}

	if err := wc.kv.Set(chainHeaderKey(height), mustEncode(ch.ToProto())); err != nil {
		return err
	}
	if err := wc.kv.Set(headerHashKey(hash), mustEncode(&gogotypes.UInt64Value{Value: height})); err != nil {
		return err
	}
	return setUint64Meta(wc.kv, MetadataHeaderTipHeight, height)
}

func (op insertBlockBodyOp) apply(wc *writeContext) error {
	block := op.block
	if block == nil || block.Header == nil {
		return invalidOp("nil block")
	}
	if err := block.Body.ValidateBasic(); err != nil {
		return invalidOp("block body: %v", err)
	}
	height := block.Height()
	hash := block.Hash()

	tip, hasBody, err := bodyTip(wc.kv)
	if err != nil {
		return err
	}
	expected := uint64(0)
	if hasBody {
		expected = tip + 1
	}
	if height != expected {
		return invalidOp("block %d does not extend the block chain tip %d", height, tip)
	}

	ch, err := getChainHeader(wc.kv, height)
	if err != nil {
		return fmt.Errorf("block %d: %w", height, err)
	}
	if !bytes.Equal(ch.Hash(), hash) {
		return invalidOp("block %v is not on the header chain at height %d", hash, height)
	}

	var parent *types.BlockAccumulatedData
	if height > 0 {
		if parent, err = getBlockAccumulatedData(wc.kv, block.Header.PrevHash); err != nil {
			return err
		}
	}
	applied, err := applyBody(wc.kv, parent, block.Body)
	if err != nil {
		return err
	}
	roots, err := applied.roots()
	if err != nil {
		return err
	}
	if err := roots.Matches(block.Header); err != nil {
		return err
	}

	idx := &storeproto.BlockBodyIndex{
		Outputs: make([][]byte, 0, len(block.Body.Outputs)),
		Inputs:  make([][]byte, 0, len(block.Body.Inputs)),
		Kernels: make([][]byte, 0, len(block.Body.Kernels)),
	}
	for _, in := range block.Body.Inputs {
		idx.Inputs = append(idx.Inputs, in.Commitment)
	}
	for i, out := range block.Body.Outputs {
		leaf := applied.outputLeaves[i]
		rec := &storeproto.OutputRecord{
			Output:    out.ToProto(),
			BlockHash: hash,
			Height:    height,
			LeafIndex: leaf,
		}
		if err := wc.kv.Set(outputKey(out.Commitment), mustEncode(rec)); err != nil {
			return err
		}
		if err := setLeafIndex(wc.kv, TreeOutput, out.Hash(), leaf); err != nil {
			return err
		}
		if err := setLeafIndex(wc.kv, TreeRangeProof, out.RangeProofHash(), leaf); err != nil {
			return err
		}
		idx.Outputs = append(idx.Outputs, out.Commitment)
	}
	for i, k := range block.Body.Kernels {
		leaf := applied.kernelLeaves[i]
		rec := &storeproto.KernelRecord{
			Kernel:    k.ToProto(),
			BlockHash: hash,
			Height:    height,
			LeafIndex: leaf,
		}
		if err := wc.kv.Set(kernelKey(k.Excess), mustEncode(rec)); err != nil {
			return err
		}
		if err := setLeafIndex(wc.kv, TreeKernel, k.Hash(), leaf); err != nil {
			return err
		}
		idx.Kernels = append(idx.Kernels, k.Excess)
	}

	for _, tree := range Trees {
		if err := wc.checkpoints[tree].Push(applied.checkpoints[tree]); err != nil {
			return err
		}
	}

	acc, err := applied.accumulatedData()
	if err != nil {
		return err
	}
	if err := wc.kv.Set(blockAccumulatedKey(hash), mustEncode(acc.ToProto())); err != nil {
		return err
	}
	if err := wc.kv.Set(blockBodyIndexKey(hash), mustEncode(idx)); err != nil {
		return err
	}
	return wc.kv.Delete(orphanKey(hash))
}

func setLeafIndex(kv kvStore, tree Tree, hash []byte, leaf uint64) error {
	return kv.Set(leafIndexKey(tree, hash), mustEncode(&gogotypes.UInt64Value{Value: leaf}))
}

func (op setBestBlockOp) apply(wc *writeContext) error {
	ch, err := getChainHeader(wc.kv, op.height)
	if err != nil {
		return err
	}
	if !bytes.Equal(ch.Hash(), op.hash) {
		return invalidOp("best block %v is not on the header chain at height %d", op.hash, op.height)
	}
	tip, hasBody, err := bodyTip(wc.kv)
	if err != nil {
		return err
	}
	if !hasBody || op.height > tip {
		return invalidOp("best block %d has no stored body", op.height)
	}
	if err := setUint64Meta(wc.kv, MetadataChainHeight, op.height); err != nil {
		return err
	}
	return setBytesMeta(wc.kv, MetadataBestBlock, op.hash)
}

func (op setAccumulatedWorkOp) apply(wc *writeContext) error {
	if op.work == nil {
		return invalidOp("nil accumulated work")
	}
	b := op.work.Bytes32()
	return setBytesMeta(wc.kv, MetadataAccumulatedWork, b[:])
}

func (op insertOrphanOp) apply(wc *writeContext) error {
	if op.block == nil || op.block.Header == nil {
		return invalidOp("nil orphan")
	}
	return wc.kv.Set(orphanKey(op.block.Hash()), mustEncode(op.block.ToProto()))
}

func (op deleteOrphanOp) apply(wc *writeContext) error {
	return wc.kv.Delete(orphanKey(op.hash))
}

func (rewindTipBlockOp) apply(wc *writeContext) error {
	tip, hasBody, err := bodyTip(wc.kv)
	if err != nil {
		return err
	}
	if !hasBody || tip == 0 {
		return invalidOp("no block to rewind")
	}
	offset, _, err := getUint64Meta(wc.kv, MetadataCheckpointOffset)
	if err != nil {
		return err
	}
	if tip <= offset {
		return fmt.Errorf("block %d is merged into the checkpoint at %d: %w", tip, offset, ErrBeyondPrunedHeight)
	}

	ch, err := getChainHeader(wc.kv, tip)
	if err != nil {
		return err
	}
	hash := ch.Hash()
	block, err := fetchBlock(wc.kv, hash)
	if err != nil {
		return err
	}

	for _, out := range block.Body.Outputs {
		for _, key := range [][]byte{
			outputKey(out.Commitment),
			leafIndexKey(TreeOutput, out.Hash()),
			leafIndexKey(TreeRangeProof, out.RangeProofHash()),
		} {
			if err := wc.kv.Delete(key); err != nil {
				return err
			}
		}
	}
	for _, k := range block.Body.Kernels {
		if err := wc.kv.Delete(kernelKey(k.Excess)); err != nil {
			return err
		}
		if err := wc.kv.Delete(leafIndexKey(TreeKernel, k.Hash())); err != nil {
			return err
		}
	}

	for _, tree := range Trees {
		cps := wc.checkpoints[tree]
		count, err := cps.Len()
		if err != nil {
			return err
		}
		keep := count - 1
		if err := cps.Truncate(keep); err != nil {
			return err
		}
		tree := tree
		wc.onCommit = append(wc.onCommit, func(caches map[Tree]*mmr.Cache) {
			caches[tree].Truncated(keep)
		})
	}

	if err := wc.kv.Delete(blockAccumulatedKey(hash)); err != nil {
		return err
	}
	if err := wc.kv.Delete(blockBodyIndexKey(hash)); err != nil {
		return err
	}

	parent, err := getChainHeader(wc.kv, tip-1)
	if err != nil {
		return err
	}
	if err := setUint64Meta(wc.kv, MetadataChainHeight, tip-1); err != nil {
		return err
	}
	if err := setBytesMeta(wc.kv, MetadataBestBlock, parent.Hash()); err != nil {
		return err
	}
	work := parent.Accumulated.TotalAccumulatedDifficulty.Bytes32()
	if err := setBytesMeta(wc.kv, MetadataAccumulatedWork, work[:]); err != nil {
		return err
	}
	return wc.kv.Set(orphanKey(hash), mustEncode(block.ToProto()))
}

func (deleteTipHeaderOp) apply(wc *writeContext) error {
	tip, ok, err := headerTip(wc.kv)
	if err != nil {
		return err
	}
	if !ok {
		return invalidOp("no header to delete")
	}
	bodyHeight, hasBody, err := bodyTip(wc.kv)
	if err != nil {
		return err
	}
	if hasBody && tip <= bodyHeight {
		return invalidOp("header %d has a stored body, rewind the block first", tip)
	}

	ch, err := getChainHeader(wc.kv, tip)
	if err != nil {
		return err
	}
	if err := wc.kv.Delete(chainHeaderKey(tip)); err != nil {
		return err
	}
	if err := wc.kv.Delete(headerHashKey(ch.Hash())); err != nil {
		return err
	}
	if tip == 0 {
		return wc.kv.Delete(metadataKey(MetadataHeaderTipHeight))
	}
	return setUint64Meta(wc.kv, MetadataHeaderTipHeight, tip-1)
}

func (op mergeCheckpointsOp) apply(wc *writeContext) error {
	if op.k < 1 {
		return invalidOp("cannot merge %d checkpoints", op.k)
	}
	for _, tree := range Trees {
		if _, err := mmr.MergeCheckpoints(wc.checkpoints[tree], op.k); err != nil {
			return fmt.Errorf("%v checkpoints: %w", tree, err)
		}
	}
	if op.k == 1 {
		return nil
	}

	offset, _, err := getUint64Meta(wc.kv, MetadataCheckpointOffset)
	if err != nil {
		return err
	}
	offset += uint64(op.k - 1)
	if err := setUint64Meta(wc.kv, MetadataCheckpointOffset, offset); err != nil {
		return err
	}
	if err := setUint64Meta(wc.kv, MetadataPrunedHeight, offset); err != nil {
		return err
	}
	k := op.k
	wc.onCommit = append(wc.onCommit, func(caches map[Tree]*mmr.Cache) {
		for _, c := range caches {
			c.CheckpointsMerged(k)
		}
	})
	return nil
}

func (op setPruningHorizonOp) apply(wc *writeContext) error {
	return setUint64Meta(wc.kv, MetadataPruningHorizon, op.horizon)
}

// accumulatedWork decodes the stored accumulated work.
func accumulatedWork(kv kvStore) (*uint256.Int, error) {
	bz, err := getBytesMeta(kv, MetadataAccumulatedWork)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(bz), nil
}
