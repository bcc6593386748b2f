package blocksync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/validation"
	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// BlockSyncInfo describes the progress of a block sync session.
type BlockSyncInfo struct {
	Peer        PeerID
	LocalHeight uint64
	TipHeight   uint64
}

// BlockSyncOption sets an optional parameter on the BlockSynchronizer.
type BlockSyncOption func(*BlockSynchronizer)

// OnStarting is called when a session with a peer starts.
func OnStarting(fn func(info BlockSyncInfo)) BlockSyncOption {
	return func(s *BlockSynchronizer) { s.onStarting = append(s.onStarting, fn) }
}

// OnProgress is called after every committed block.
func OnProgress(fn func(info BlockSyncInfo)) BlockSyncOption {
	return func(s *BlockSynchronizer) { s.onProgress = append(s.onProgress, fn) }
}

// OnComplete is called with the last committed block once the best block
// reaches the header tip.
func OnComplete(fn func(block *types.Block)) BlockSyncOption {
	return func(s *BlockSynchronizer) { s.onComplete = append(s.onComplete, fn) }
}

// BlockSynchronizer downloads the bodies of the blocks between the best
// block and the header tip from a peer and commits them. Headers must
// already be in the store: the synchronizer never extends the header chain.
type BlockSynchronizer struct {
	logger    log.Logger
	cfg       *config.SyncConfig
	store     store.BlockStore
	peers     PeerConnectivity
	validator validation.BodyValidator
	metrics   *Metrics

	onStarting []func(BlockSyncInfo)
	onProgress []func(BlockSyncInfo)
	onComplete []func(*types.Block)
}

func NewBlockSynchronizer(
	logger log.Logger,
	cfg *config.SyncConfig,
	store store.BlockStore,
	peers PeerConnectivity,
	validator validation.BodyValidator,
	metrics *Metrics,
	opts ...BlockSyncOption,
) *BlockSynchronizer {
	s := &BlockSynchronizer{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		peers:     peers,
		validator: validator,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synchronize brings the best block up to the header tip. Peers are tried
// in order while they are unreachable; any other failure ends the call.
// Blocks committed before a failure stay committed, so calling Synchronize
// again resumes from the new best block.
func (s *BlockSynchronizer) Synchronize(ctx context.Context) error {
	peers, err := s.peers.SyncPeers(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return ErrNoSyncPeers
	}

	s.metrics.Syncing.Set(1)
	defer s.metrics.Syncing.Set(0)

	logger := s.logger.With("session", uuid.NewString())

	policy := banPolicy{cfg: s.cfg, peers: s.peers, metrics: s.metrics}
	var lastErr error
	for _, peer := range peers {
		err := s.syncFromPeer(ctx, logger.With("peer", peer.ID), peer)
		if err == nil {
			return nil
		}
		if !policy.next(logger, peer.ID, err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *BlockSynchronizer) syncFromPeer(ctx context.Context, logger log.Logger, peer SyncPeer) error {
	meta, err := s.store.FetchChainMetadata()
	if err != nil {
		return err
	}
	tip, err := s.store.FetchTipHeader()
	if err != nil {
		return err
	}
	if meta.Height >= tip.Height() {
		logger.Debug("best block is at the header tip", "height", meta.Height)
		return nil
	}

	info := BlockSyncInfo{Peer: peer.ID, LocalHeight: meta.Height, TipHeight: tip.Height()}
	s.metrics.TargetHeight.Set(float64(tip.Height()))
	for _, fn := range s.onStarting {
		fn(info)
	}
	logger.Info("syncing blocks", "from", meta.Height+1, "to", tip.Height())

	pool := newValidationPool(s.validator, s.cfg.ValidationConcurrency, s.metrics)
	defer pool.stop()

	g, gctx := errgroup.WithContext(ctx)
	stream, err := peer.Client.SyncBlocks(gctx, &syncproto.SyncBlocksRequest{
		StartHash: meta.BestBlock,
		EndHash:   tip.Hash(),
		Count:     tip.Height() - meta.Height,
	})
	if err != nil {
		return requestErr(peer.ID, err)
	}

	blocks := make(chan *types.Block, s.cfg.BlockChunkSize)
	g.Go(func() error {
		defer close(blocks)
		for {
			block, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return requestErr(peer.ID, err)
			}
			select {
			case blocks <- block:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var last *types.ChainHeader
	var lastBlock *types.Block
	lastHash := meta.BestBlock
	g.Go(func() error {
		for block := range blocks {
			if err := gctx.Err(); err != nil {
				return err
			}
			ch, err := s.commitBlock(gctx, pool, peer.ID, lastHash, block)
			if err != nil {
				return err
			}
			last, lastBlock, lastHash = ch, block, ch.Hash()

			info.LocalHeight = ch.Height()
			s.metrics.BlocksSynced.Add(1)
			s.metrics.SyncHeight.Set(float64(ch.Height()))
			for _, fn := range s.onProgress {
				fn(info)
			}
		}
		return nil
	})

	err = g.Wait()
	if last != nil {
		txn := store.NewDBTransaction().SetAccumulatedWork(last.Accumulated.TotalAccumulatedDifficulty)
		if werr := s.store.Write(txn); werr != nil {
			if err == nil {
				return werr
			}
			logger.Error("failed to record accumulated work", "err", werr)
		}
	}
	if err != nil {
		return err
	}

	if last == nil || last.Height() < tip.Height() {
		height := meta.Height
		if last != nil {
			height = last.Height()
		}
		return peerErr(peer.ID, ErrProtocol, "block stream ended at #%d before the header tip #%d", height, tip.Height())
	}

	logger.Info("block sync complete", "height", last.Height(), "hash", last.Hash())
	for _, fn := range s.onComplete {
		fn(lastBlock)
	}
	return nil
}

// commitBlock validates block against the local header chain and the
// previous committed block, then writes it together with the new best
// block.
func (s *BlockSynchronizer) commitBlock(
	ctx context.Context,
	pool *validationPool,
	peer PeerID,
	prevHash tmbytes.HexBytes,
	block *types.Block,
) (*types.ChainHeader, error) {
	if block == nil || block.Header == nil || block.Body == nil {
		return nil, peerErr(peer, ErrProtocol, "incomplete block")
	}
	hash := block.Hash()
	ch, err := s.store.FetchChainHeaderByHash(hash)
	if errors.Is(err, store.ErrValueNotFound) {
		return nil, peerErr(peer, ErrUnknownHeader, "block #%d %v", block.Height(), hash)
	}
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(block.Header.PrevHash, prevHash) {
		return nil, peerErr(peer, ErrChainLinkage, "block #%d %v has previous hash %v, expected %v",
			block.Height(), hash, block.Header.PrevHash, prevHash)
	}

	if err := pool.validate(ctx, block); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var verr *validation.Error
		if errors.As(err, &verr) {
			return nil, peerWrap(peer, ErrBlockValidation, err)
		}
		return nil, fmt.Errorf("validate block #%d: %w", block.Height(), err)
	}

	txn := store.NewDBTransaction().
		InsertBlockBody(block).
		SetBestBlock(ch.Height(), ch.Hash())
	if err := s.store.Write(txn); err != nil {
		return nil, fmt.Errorf("commit block #%d: %w", block.Height(), err)
	}
	return ch, nil
}
