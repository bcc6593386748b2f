package blocksync

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/consensus"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/validation"
	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// consecutiveLocatorHashes is the number of headers below the tip that are
// all part of a block locator before the gaps start doubling.
const consecutiveLocatorHashes = 10

// HeaderSynchronizer extends the local header chain with the headers of a
// peer whose chain carries more accumulated work. If the peer's chain forks
// below the local header tip, the local blocks and headers above the fork
// are rewound once the peer's headers have proven to be heavier.
type HeaderSynchronizer struct {
	logger  log.Logger
	cfg     *config.SyncConfig
	store   store.BlockStore
	rules   consensus.Rules
	peers   PeerConnectivity
	metrics *Metrics
}

func NewHeaderSynchronizer(
	logger log.Logger,
	cfg *config.SyncConfig,
	store store.BlockStore,
	rules consensus.Rules,
	peers PeerConnectivity,
	metrics *Metrics,
) *HeaderSynchronizer {
	return &HeaderSynchronizer{
		logger:  logger,
		cfg:     cfg,
		store:   store,
		rules:   rules,
		peers:   peers,
		metrics: metrics,
	}
}

// Synchronize syncs headers from the first peer that is reachable and
// claims a heavier chain. It is a no-op if no peer is ahead.
func (s *HeaderSynchronizer) Synchronize(ctx context.Context) error {
	peers, err := s.peers.SyncPeers(ctx)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return ErrNoSyncPeers
	}

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

// BlockLocator returns the hashes of the header chain from the tip down to
// genesis: the tip and the headers right below it, then with exponentially
// growing gaps.
func BlockLocator(s store.BlockStore) ([][]byte, error) {
	tip, err := s.FetchTipHeader()
	if err != nil {
		return nil, err
	}

	hashes := make([][]byte, 0, consecutiveLocatorHashes+32)
	height, step := tip.Height(), uint64(1)
	for len(hashes) < syncproto.MaxChainSplitHashes {
		ch, err := s.FetchChainHeaderByHeight(height)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, ch.Hash())
		if height == 0 {
			break
		}
		if len(hashes) > consecutiveLocatorHashes {
			step *= 2
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
	}
	return hashes, nil
}

func (s *HeaderSynchronizer) syncFromPeer(ctx context.Context, logger log.Logger, peer SyncPeer) error {
	localTip, err := s.store.FetchTipHeader()
	if err != nil {
		return err
	}
	localWork := localTip.Accumulated.TotalAccumulatedDifficulty

	peerMeta, err := peer.Client.GetChainMetadata(ctx)
	if err != nil {
		return requestErr(peer.ID, err)
	}
	if peerMeta.AccumulatedWork == nil || !peerMeta.AccumulatedWork.Gt(localWork) {
		logger.Debug("peer chain is not ahead", "peer_height", peerMeta.Height, "local_height", localTip.Height())
		return nil
	}

	locator, err := BlockLocator(s.store)
	if err != nil {
		return err
	}
	count := uint64(s.cfg.HeaderChunkSize)
	if count > syncproto.MaxChainSplitHeaders {
		count = syncproto.MaxChainSplitHeaders
	}
	split, err := peer.Client.FindChainSplit(ctx, &syncproto.FindChainSplitRequest{
		BlockHashes: locator,
		HeaderCount: count,
	})
	if err != nil {
		return requestErr(peer.ID, err)
	}
	if split.FoundHashIndex >= uint64(len(locator)) {
		return peerErr(peer.ID, ErrProtocol, "chain split index %d out of %d hashes", split.FoundHashIndex, len(locator))
	}
	if uint64(len(split.Headers)) > count {
		return peerErr(peer.ID, ErrProtocol, "got %d headers after the chain split, asked for %d", len(split.Headers), count)
	}

	splitHash := tmbytes.HexBytes(locator[split.FoundHashIndex])
	splitHeight, err := s.store.FetchHeaderHeight(splitHash)
	if err != nil {
		return err
	}
	meta, err := s.store.FetchChainMetadata()
	if err != nil {
		return err
	}
	logger.Info("syncing headers",
		"split_height", splitHeight, "local_tip", localTip.Height(), "peer_tip", split.TipHeight)

	validator := validation.NewChainHeaderValidator(s.store, s.rules)
	if err := validator.InitializeState(splitHash); err != nil {
		return err
	}

	c := &headerCommitter{
		logger:         logger,
		store:          s.store,
		metrics:        s.metrics,
		chunkSize:      s.cfg.HeaderChunkSize,
		localWork:      localWork,
		splitHeight:    splitHeight,
		bestHeight:     meta.Height,
		localTipHeight: localTip.Height(),
		reorg:          splitHeight < localTip.Height(),
	}

	process := func(h *types.BlockHeader) error {
		ch, err := validator.ValidateHeader(h)
		if err != nil {
			if errors.Is(err, validation.ErrNotInitialized) {
				return err
			}
			return peerWrap(peer.ID, ErrHeaderValidation, err)
		}
		return c.add(ch)
	}

	lastHash, lastHeight := splitHash, splitHeight
	err = func() error {
		for _, h := range split.Headers {
			if err := process(h); err != nil {
				return err
			}
			lastHash, lastHeight = h.Hash(), h.Height
		}
		if lastHeight >= split.TipHeight {
			return nil
		}

		sctx, cancel := context.WithCancel(ctx)
		defer cancel()

		want := split.TipHeight - lastHeight
		stream, err := peer.Client.SyncHeaders(sctx, &syncproto.SyncHeadersRequest{StartHash: lastHash, Count: want})
		if err != nil {
			return requestErr(peer.ID, err)
		}
		var received uint64
		for {
			h, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return requestErr(peer.ID, err)
			}
			if received++; received > want {
				return peerErr(peer.ID, ErrProtocol, "got more than the %d headers asked for", want)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := process(h); err != nil {
				return err
			}
			lastHeight = h.Height
		}
	}()
	if err != nil {
		// headers extending the local tip are kept even if later ones are bad
		if !c.reorg {
			if ferr := c.flush(); ferr != nil {
				logger.Error("failed to commit valid headers", "err", ferr)
			}
		}
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}
	if c.last == nil || !c.last.Accumulated.TotalAccumulatedDifficulty.Gt(localWork) {
		return peerErr(peer.ID, ErrPeerChainNotHeavier, "headers up to #%d do not outweigh the local tip #%d",
			lastHeight, localTip.Height())
	}
	logger.Info("header sync complete", "height", c.last.Height(), "hash", c.last.Hash())
	return nil
}

// headerCommitter writes validated headers to the store. Headers extending
// the local tip are committed in chunks. Headers forking off below the tip
// are held back until they carry more work than the local chain, then
// replace it in a single transaction.
type headerCommitter struct {
	logger    log.Logger
	store     store.BlockStore
	metrics   *Metrics
	chunkSize int

	localWork      *uint256.Int
	splitHeight    uint64
	bestHeight     uint64
	localTipHeight uint64

	reorg   bool
	pending []*types.ChainHeader
	last    *types.ChainHeader
}

func (c *headerCommitter) add(ch *types.ChainHeader) error {
	c.pending = append(c.pending, ch)
	c.last = ch
	if c.reorg {
		if ch.Accumulated.TotalAccumulatedDifficulty.Gt(c.localWork) {
			return c.commitReorg()
		}
		return nil
	}
	if len(c.pending) >= c.chunkSize {
		return c.flush()
	}
	return nil
}

func (c *headerCommitter) commitReorg() error {
	txn := store.NewDBTransaction()
	for h := c.bestHeight; h > c.splitHeight; h-- {
		txn.RewindTipBlock()
	}
	for h := c.localTipHeight; h > c.splitHeight; h-- {
		txn.DeleteTipHeader()
	}
	txn.InsertChainHeaders(c.pending)
	if err := c.store.Write(txn); err != nil {
		return err
	}

	c.logger.Info("switched to a heavier header chain",
		"split_height", c.splitHeight,
		"rewound_blocks", saturatingSub(c.bestHeight, c.splitHeight),
		"removed_headers", c.localTipHeight-c.splitHeight,
		"height", c.last.Height())
	c.metrics.Reorgs.Add(1)
	c.metrics.HeadersSynced.Add(float64(len(c.pending)))
	c.reorg = false
	c.pending = nil
	return nil
}

func (c *headerCommitter) flush() error {
	if c.reorg || len(c.pending) == 0 {
		return nil
	}
	if err := c.store.Write(store.NewDBTransaction().InsertChainHeaders(c.pending)); err != nil {
		return err
	}
	c.logger.Debug("committed headers", "count", len(c.pending), "height", c.pending[len(c.pending)-1].Height())
	c.metrics.HeadersSynced.Add(float64(len(c.pending)))
	c.pending = nil
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
