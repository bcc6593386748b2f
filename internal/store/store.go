package store

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gogo/protobuf/proto"
	gogotypes "github.com/gogo/protobuf/types"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/internal/mmr"
	"github.com/mmrnode/mmrnode/libs/log"
	storeproto "github.com/mmrnode/mmrnode/proto/mmrnode/store"
	typesproto "github.com/mmrnode/mmrnode/proto/mmrnode/types"
	"github.com/mmrnode/mmrnode/types"
)

// BlockStore is the persistent chain state: the header chain, the block
// bodies applied on top of it, the accumulators they build and the chain
// metadata. Reads never observe a partially applied transaction.
type BlockStore interface {
	FetchChainHeaderByHeight(height uint64) (*types.ChainHeader, error)
	FetchChainHeaderByHash(hash []byte) (*types.ChainHeader, error)
	FetchHeaderByHeight(height uint64) (*types.BlockHeader, error)
	FetchHeaderByHash(hash []byte) (*types.BlockHeader, error)
	FetchHeaderHeight(hash []byte) (uint64, error)
	// FetchHeaders returns up to count consecutive headers starting at
	// height from. It stops early at the header tip.
	FetchHeaders(from uint64, count int) ([]*types.BlockHeader, error)
	// FetchTipHeader returns the tip of the header chain, which may be ahead
	// of the best block.
	FetchTipHeader() (*types.ChainHeader, error)

	FetchOutput(commitment []byte) (*OutputInfo, error)
	FetchKernelByExcess(excess []byte) (*KernelInfo, error)
	FetchOrphan(hash []byte) (*types.Block, error)
	FetchChainMetadata() (*types.ChainMetadata, error)
	FetchBlockAccumulatedData(hash []byte) (*types.BlockAccumulatedData, error)
	FetchBlock(hash []byte) (*types.Block, error)

	FetchOutputsInBlock(hash []byte) ([]*types.TransactionOutput, error)
	FetchKernelsInBlock(hash []byte) ([]*types.TransactionKernel, error)
	FetchInputsInBlock(hash []byte) ([]*types.TransactionInput, error)

	FetchMMRLeafIndex(tree Tree, hash []byte) (uint64, bool, error)
	FetchMMRLeaf(tree Tree, leafIndex uint64) ([]byte, bool, error)
	FetchMMRSize(tree Tree) (uint64, error)
	FetchMMRRoot(tree Tree) ([]byte, error)
	FetchDeletedBitmap() (*bitset.BitSet, error)
	// CalculateMMRRoots returns the roots the accumulators would have after
	// applying block on top of the best block. The store is not modified.
	CalculateMMRRoots(block *types.Block) (*MMRRoots, error)

	// Write applies every operation of txn or none of them.
	Write(txn *DBTransaction) error
}

// OutputInfo is a stored output and where it sits in the output MMR.
type OutputInfo struct {
	Output    *types.TransactionOutput
	BlockHash []byte
	Height    uint64
	LeafIndex uint64
	Spent     bool
}

// KernelInfo is a stored kernel and where it sits in the kernel MMR.
type KernelInfo struct {
	Kernel    *types.TransactionKernel
	BlockHash []byte
	Height    uint64
	LeafIndex uint64
}

/*
DBStore is a BlockStore over any tm-db database.

Every mutation goes through Write: the operations of a transaction are
applied to an in-memory overlay of the database, which is flushed with a
single synced batch. The accumulators are kept by one mmr.Cache per tree
whose checkpoints are persisted in the same batch; the caches are brought up
to date after the batch is durable, under the same lock readers take. If
that update fails the commit still stands: accumulator reads return
ErrStorage until the next Write brings the caches back in line.
*/
type DBStore struct {
	mtx sync.RWMutex

	db          dbm.DB
	caches      map[Tree]*mmr.Cache
	cacheConfig mmr.CacheConfig
	// cacheErr is the last failed cache update, nil once they are current.
	cacheErr error

	logger  log.Logger
	metrics *Metrics
}

var _ BlockStore = (*DBStore)(nil)

// Option sets an optional parameter of a DBStore.
type Option func(*DBStore)

func WithLogger(logger log.Logger) Option {
	return func(s *DBStore) { s.logger = logger }
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *DBStore) { s.metrics = metrics }
}

// WithCacheConfig sets how many checkpoints the accumulator caches keep
// replayable.
func WithCacheConfig(cfg mmr.CacheConfig) Option {
	return func(s *DBStore) { s.cacheConfig = cfg }
}

// NewBlockStore opens the chain state in db. An empty database is
// initialized with genesis; otherwise the stored genesis must match it.
func NewBlockStore(db dbm.DB, genesis *types.Block, opts ...Option) (*DBStore, error) {
	s := &DBStore{
		db:          db,
		cacheConfig: mmr.DefaultCacheConfig(),
		logger:      log.NewNopLogger(),
		metrics:     NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.caches = make(map[Tree]*mmr.Cache, len(Trees))
	for _, tree := range Trees {
		template := mmr.NewMutableMMR(mmr.NewMemBackend())
		c, err := mmr.NewCache(template, newCheckpointStore(readOnlyKV{db: db}, tree), s.cacheConfig)
		if err != nil {
			return nil, fmt.Errorf("loading %v mmr: %w", tree, err)
		}
		s.caches[tree] = c
	}

	_, initialized, err := headerTip(db)
	if err != nil {
		return nil, err
	}
	if !initialized {
		if err := s.initGenesis(genesis); err != nil {
			return nil, fmt.Errorf("initializing genesis: %w", err)
		}
	} else if genesis != nil {
		stored, err := s.FetchHeaderByHeight(0)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(stored.Hash(), genesis.Hash()) {
			return nil, fmt.Errorf("database genesis %v does not match %v", stored.Hash(), genesis.Hash())
		}
	}

	if err := s.checkHeaderTip(); err != nil {
		return nil, err
	}

	meta, err := s.FetchChainMetadata()
	if err != nil {
		return nil, err
	}
	s.updateHeightMetrics(meta)
	s.logger.Info("opened block store", "height", meta.Height, "best_block", meta.BestBlock)
	return s, nil
}

func (s *DBStore) initGenesis(genesis *types.Block) error {
	if genesis == nil {
		return errors.New("empty database and no genesis block")
	}
	if genesis.Height() != 0 {
		return fmt.Errorf("genesis block has height %d", genesis.Height())
	}
	acc := types.GenesisAccumulatedData(genesis.Header)
	txn := NewDBTransaction().
		InsertChainHeader(&types.ChainHeader{Header: genesis.Header, Accumulated: acc}).
		InsertBlockBody(genesis).
		SetBestBlock(0, acc.Hash).
		SetAccumulatedWork(acc.TotalAccumulatedDifficulty)
	return s.Write(txn)
}

// checkHeaderTip compares the recorded header tip with the last stored
// header.
func (s *DBStore) checkHeaderTip() error {
	tip, _, err := headerTip(s.db)
	if err != nil {
		return err
	}
	iter, err := s.db.ReverseIterator(chainHeaderKey(0), chainHeaderKey(1<<64-1))
	if err != nil {
		return storageErr("iterate headers", err)
	}
	defer iter.Close()

	if !iter.Valid() {
		return errors.New("no headers stored")
	}
	last, err := decodeChainHeaderKey(iter.Key())
	if err != nil {
		return err
	}
	if last != tip {
		return fmt.Errorf("header tip is %d but last stored header is %d", tip, last)
	}
	return storageErr("iterate headers", iter.Error())
}

func (s *DBStore) updateHeightMetrics(meta *types.ChainMetadata) {
	s.metrics.ChainHeight.Set(float64(meta.Height))
	s.metrics.PrunedHeight.Set(float64(meta.PrunedHeight))
	if tip, _, err := headerTip(s.db); err == nil {
		s.metrics.HeaderHeight.Set(float64(tip))
	}
}

// Write applies txn atomically. A failing operation discards the whole
// transaction and leaves the store untouched. Once Write returns nil the
// transaction is durable.
func (s *DBStore) Write(txn *DBTransaction) error {
	if txn == nil || txn.Len() == 0 {
		return nil
	}
	start := time.Now()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	wc := newWriteContext(newOverlay(s.db))
	for _, op := range txn.ops {
		if err := op.apply(wc); err != nil {
			s.metrics.FailedTransactions.Add(1)
			return fmt.Errorf("%v: %w", op, err)
		}
	}
	if err := wc.kv.flush(); err != nil {
		s.metrics.FailedTransactions.Add(1)
		return err
	}

	for _, fn := range wc.onCommit {
		fn(s.caches)
	}
	s.updateCaches()

	s.metrics.Transactions.Add(1)
	s.metrics.WriteSize.Observe(float64(wc.kv.size()))
	s.metrics.WriteDuration.Observe(time.Since(start).Seconds())
	if meta, err := s.fetchChainMetadata(); err == nil {
		s.updateHeightMetrics(meta)
	}
	s.logger.Debug("committed transaction", "ops", txn.Len(), "keys", wc.kv.size())
	return nil
}

// updateCaches brings every cache in line with its checkpoints. A failed
// cache marks itself for a rebuild, which the next call retries.
func (s *DBStore) updateCaches() {
	s.cacheErr = nil
	for _, tree := range Trees {
		if err := s.caches[tree].Update(); err != nil {
			s.logger.Error("failed to update mmr cache", "tree", tree, "err", err)
			s.cacheErr = fmt.Errorf("%v mmr cache: %w", tree, err)
		}
	}
}

func (s *DBStore) Close() error {
	return s.db.Close()
}

//---------------------------------------------------------------------
// headers

func (s *DBStore) FetchChainHeaderByHeight(height uint64) (*types.ChainHeader, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return getChainHeader(s.db, height)
}

func (s *DBStore) FetchChainHeaderByHash(hash []byte) (*types.ChainHeader, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	height, err := getHeaderHeight(s.db, hash)
	if err != nil {
		return nil, err
	}
	return getChainHeader(s.db, height)
}

func (s *DBStore) FetchHeaderByHeight(height uint64) (*types.BlockHeader, error) {
	ch, err := s.FetchChainHeaderByHeight(height)
	if err != nil {
		return nil, err
	}
	return ch.Header, nil
}

func (s *DBStore) FetchHeaderByHash(hash []byte) (*types.BlockHeader, error) {
	ch, err := s.FetchChainHeaderByHash(hash)
	if err != nil {
		return nil, err
	}
	return ch.Header, nil
}

func (s *DBStore) FetchHeaderHeight(hash []byte) (uint64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return getHeaderHeight(s.db, hash)
}

func (s *DBStore) FetchHeaders(from uint64, count int) ([]*types.BlockHeader, error) {
	if count <= 0 {
		return nil, nil
	}
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	end := from + uint64(count)
	if end < from {
		end = 1<<64 - 1
	}
	iter, err := s.db.Iterator(chainHeaderKey(from), chainHeaderKey(end))
	if err != nil {
		return nil, storageErr("iterate headers", err)
	}
	defer iter.Close()

	headers := make([]*types.BlockHeader, 0, count)
	for expected := from; iter.Valid(); iter.Next() {
		height, err := decodeChainHeaderKey(iter.Key())
		if err != nil {
			return nil, err
		}
		if height != expected {
			return nil, fmt.Errorf("header chain has a gap at height %d", expected)
		}
		pc := new(storeproto.ChainHeader)
		if err := proto.Unmarshal(iter.Value(), pc); err != nil {
			return nil, fmt.Errorf("unmarshal chain header: %w", err)
		}
		h, err := types.BlockHeaderFromProto(pc.Header)
		if err != nil {
			return nil, err
		}
		headers = append(headers, h)
		expected++
	}
	return headers, storageErr("iterate headers", iter.Error())
}

func (s *DBStore) FetchTipHeader() (*types.ChainHeader, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	tip, _, err := headerTip(s.db)
	if err != nil {
		return nil, err
	}
	return getChainHeader(s.db, tip)
}

//---------------------------------------------------------------------
// blocks, outputs and kernels

func (s *DBStore) FetchOutput(commitment []byte) (*OutputInfo, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	rec, err := getOutputRecord(s.db, commitment)
	if err != nil {
		return nil, err
	}
	c, err := s.cache(TreeOutput)
	if err != nil {
		return nil, err
	}
	_, spent, err := c.FetchLeaf(rec.LeafIndex)
	if err != nil {
		return nil, fmt.Errorf("output %X leaf %d: %w", commitment, rec.LeafIndex, err)
	}
	return &OutputInfo{
		Output:    types.TransactionOutputFromProto(rec.Output),
		BlockHash: rec.BlockHash,
		Height:    rec.Height,
		LeafIndex: rec.LeafIndex,
		Spent:     spent,
	}, nil
}

func (s *DBStore) FetchKernelByExcess(excess []byte) (*KernelInfo, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	rec, err := getKernelRecord(s.db, excess)
	if err != nil {
		return nil, err
	}
	return &KernelInfo{
		Kernel:    types.TransactionKernelFromProto(rec.Kernel),
		BlockHash: rec.BlockHash,
		Height:    rec.Height,
		LeafIndex: rec.LeafIndex,
	}, nil
}

func (s *DBStore) FetchOrphan(hash []byte) (*types.Block, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	bz, err := s.db.Get(orphanKey(hash))
	if err != nil {
		return nil, storageErr("get orphan", err)
	}
	if bz == nil {
		return nil, notFound("orphan %X", hash)
	}
	pb := new(typesproto.Block)
	if err := proto.Unmarshal(bz, pb); err != nil {
		return nil, fmt.Errorf("unmarshal orphan: %w", err)
	}
	return types.BlockFromProto(pb)
}

func (s *DBStore) FetchChainMetadata() (*types.ChainMetadata, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.fetchChainMetadata()
}

func (s *DBStore) fetchChainMetadata() (*types.ChainMetadata, error) {
	height, _, err := getUint64Meta(s.db, MetadataChainHeight)
	if err != nil {
		return nil, err
	}
	best, err := getBytesMeta(s.db, MetadataBestBlock)
	if err != nil {
		return nil, err
	}
	work, err := accumulatedWork(s.db)
	if err != nil {
		return nil, err
	}
	horizon, _, err := getUint64Meta(s.db, MetadataPruningHorizon)
	if err != nil {
		return nil, err
	}
	pruned, _, err := getUint64Meta(s.db, MetadataPrunedHeight)
	if err != nil {
		return nil, err
	}
	return &types.ChainMetadata{
		Height:          height,
		BestBlock:       best,
		AccumulatedWork: work,
		PruningHorizon:  horizon,
		PrunedHeight:    pruned,
	}, nil
}

func (s *DBStore) FetchBlockAccumulatedData(hash []byte) (*types.BlockAccumulatedData, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return getBlockAccumulatedData(s.db, hash)
}

func (s *DBStore) FetchBlock(hash []byte) (*types.Block, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return fetchBlock(s.db, hash)
}

func (s *DBStore) FetchOutputsInBlock(hash []byte) ([]*types.TransactionOutput, error) {
	block, err := s.FetchBlock(hash)
	if err != nil {
		return nil, err
	}
	return block.Body.Outputs, nil
}

func (s *DBStore) FetchKernelsInBlock(hash []byte) ([]*types.TransactionKernel, error) {
	block, err := s.FetchBlock(hash)
	if err != nil {
		return nil, err
	}
	return block.Body.Kernels, nil
}

func (s *DBStore) FetchInputsInBlock(hash []byte) ([]*types.TransactionInput, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	idx, err := getBodyIndex(s.db, hash)
	if err != nil {
		return nil, err
	}
	inputs := make([]*types.TransactionInput, 0, len(idx.Inputs))
	for _, c := range idx.Inputs {
		inputs = append(inputs, &types.TransactionInput{Commitment: c})
	}
	return inputs, nil
}

//---------------------------------------------------------------------
// accumulators

func (s *DBStore) FetchMMRLeafIndex(tree Tree, hash []byte) (uint64, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	bz, err := s.db.Get(leafIndexKey(tree, hash))
	if err != nil {
		return 0, false, storageErr("get leaf index", err)
	}
	if bz == nil {
		return 0, false, nil
	}
	var v gogotypes.UInt64Value
	if err := proto.Unmarshal(bz, &v); err != nil {
		return 0, false, fmt.Errorf("unmarshal leaf index: %w", err)
	}
	return v.Value, true, nil
}

func (s *DBStore) cache(tree Tree) (*mmr.Cache, error) {
	c, ok := s.caches[tree]
	if !ok {
		return nil, fmt.Errorf("unknown mmr %v: %w", tree, ErrInvalidOperation)
	}
	if s.cacheErr != nil {
		return nil, storageErr("read mmr cache", s.cacheErr)
	}
	return c, nil
}

// FetchMMRLeaf returns the hash of a leaf and whether it is deleted.
func (s *DBStore) FetchMMRLeaf(tree Tree, leafIndex uint64) ([]byte, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	c, err := s.cache(tree)
	if err != nil {
		return nil, false, err
	}
	return c.FetchLeaf(leafIndex)
}

// FetchMMRSize returns the node count of the accumulator.
func (s *DBStore) FetchMMRSize(tree Tree) (uint64, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	c, err := s.cache(tree)
	if err != nil {
		return 0, err
	}
	return c.MMRSize()
}

// FetchMMRRoot returns the root a block header commits to for the tree: the
// output root covers the deletion bitmap, the others do not.
func (s *DBStore) FetchMMRRoot(tree Tree) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	c, err := s.cache(tree)
	if err != nil {
		return nil, err
	}
	if tree == TreeOutput {
		return c.Root()
	}
	return c.MMRRoot()
}

func (s *DBStore) FetchDeletedBitmap() (*bitset.BitSet, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	c, err := s.cache(TreeOutput)
	if err != nil {
		return nil, err
	}
	return c.Deleted(), nil
}

func (s *DBStore) CalculateMMRRoots(block *types.Block) (*MMRRoots, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	best, err := getBytesMeta(s.db, MetadataBestBlock)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(block.Header.PrevHash, best) {
		return nil, invalidOp("block %v does not extend the best block %X", block.Hash(), best)
	}
	parent, err := getBlockAccumulatedData(s.db, best)
	if err != nil {
		return nil, err
	}
	applied, err := applyBody(s.db, parent, block.Body)
	if err != nil {
		return nil, err
	}
	return applied.roots()
}

// CalculateGenesisMMRRoots returns the roots of the accumulators holding
// only the genesis body.
func CalculateGenesisMMRRoots(body *types.AggregateBody) (*MMRRoots, error) {
	applied, err := applyBody(dbm.NewMemDB(), nil, body)
	if err != nil {
		return nil, err
	}
	return applied.roots()
}

//-----------------------------------------------------------------------------

// mustEncode proto encodes a proto.message and panics if fails
func mustEncode(pb proto.Message) []byte {
	bz, err := proto.Marshal(pb)
	if err != nil {
		panic(fmt.Errorf("unable to marshal: %w", err))
	}
	return bz
}
