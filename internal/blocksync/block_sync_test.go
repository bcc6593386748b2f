package blocksync

import (
	"context"
	"errors"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/test/factory"
	"github.com/mmrnode/mmrnode/internal/validation"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

func newTestStore(t *testing.T) *store.DBStore {
	t.Helper()
	s, err := store.NewBlockStore(dbm.NewMemDB(), factory.GenesisBlock())
	require.NoError(t, err)
	return s
}

// servingPeer returns a peer answering from the store of b.
func servingPeer(t *testing.T, id PeerID, b *factory.ChainBuilder) SyncPeer {
	r := NewResponder(log.NewTestingLogger(t), b.Store(), 10, NopMetrics())
	return SyncPeer{ID: id, Client: NewLocalClient(r)}
}

func newBlockSynchronizer(t *testing.T, cfg *config.SyncConfig, s store.BlockStore, peers PeerConnectivity, opts ...BlockSyncOption) *BlockSynchronizer {
	return NewBlockSynchronizer(log.NewTestingLogger(t), cfg, s, peers, validation.NewBodyOnlyValidator(s), NopMetrics(), opts...)
}

func requireSameRoots(t *testing.T, want, got store.BlockStore) {
	t.Helper()
	for _, tree := range store.Trees {
		w, err := want.FetchMMRRoot(tree)
		require.NoError(t, err)
		g, err := got.FetchMMRRoot(tree)
		require.NoError(t, err)
		require.Equal(t, w, g, "%v root", tree)
	}
}

func requireBestBlock(t *testing.T, s store.BlockStore, ch *types.ChainHeader) {
	t.Helper()
	meta, err := s.FetchChainMetadata()
	require.NoError(t, err)
	require.Equal(t, ch.Height(), meta.Height)
	require.EqualValues(t, ch.Hash(), meta.BestBlock)
}

// tamperingClient changes the blocks and headers a SyncClient streams.
// Returning nil from a tamper function drops the item.
type tamperingClient struct {
	SyncClient
	block  func(*types.Block) *types.Block
	header func(*types.BlockHeader) *types.BlockHeader
	work   func(*types.ChainMetadata)
}

func (c *tamperingClient) SyncBlocks(ctx context.Context, req *syncproto.SyncBlocksRequest) (BlockStream, error) {
	s, err := c.SyncClient.SyncBlocks(ctx, req)
	if err != nil || c.block == nil {
		return s, err
	}
	return &tamperedBlocks{BlockStream: s, fn: c.block}, nil
}

func (c *tamperingClient) SyncHeaders(ctx context.Context, req *syncproto.SyncHeadersRequest) (HeaderStream, error) {
	s, err := c.SyncClient.SyncHeaders(ctx, req)
	if err != nil || c.header == nil {
		return s, err
	}
	return &tamperedHeaders{HeaderStream: s, fn: c.header}, nil
}

func (c *tamperingClient) GetChainMetadata(ctx context.Context) (*types.ChainMetadata, error) {
	meta, err := c.SyncClient.GetChainMetadata(ctx)
	if err == nil && c.work != nil {
		c.work(meta)
	}
	return meta, err
}

type tamperedBlocks struct {
	BlockStream
	fn func(*types.Block) *types.Block
}

func (s *tamperedBlocks) Recv() (*types.Block, error) {
	for {
		b, err := s.BlockStream.Recv()
		if err != nil {
			return nil, err
		}
		if b = s.fn(b); b != nil {
			return b, nil
		}
	}
}

type tamperedHeaders struct {
	HeaderStream
	fn func(*types.BlockHeader) *types.BlockHeader
}

func (s *tamperedHeaders) Recv() (*types.BlockHeader, error) {
	for {
		h, err := s.HeaderStream.Recv()
		if err != nil {
			return nil, err
		}
		if h = s.fn(h); h != nil {
			return h, nil
		}
	}
}

// unreachableClient fails every request like a peer that is down.
type unreachableClient struct{ SyncClient }

func (unreachableClient) SyncBlocks(context.Context, *syncproto.SyncBlocksRequest) (BlockStream, error) {
	return nil, errors.New("connection refused")
}

func TestBlockSync(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(25)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 25)

	var (
		started   []BlockSyncInfo
		progress  []uint64
		completed *types.Block
	)
	peers := NewStaticPeers(servingPeer(t, "remote", remote))
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, peers,
		OnStarting(func(info BlockSyncInfo) { started = append(started, info) }),
		OnProgress(func(info BlockSyncInfo) { progress = append(progress, info.LocalHeight) }),
		OnComplete(func(block *types.Block) { completed = block }),
	)

	require.NoError(t, s.Synchronize(context.Background()))

	requireBestBlock(t, local, remote.Tip())
	requireSameRoots(t, remote.Store(), local)

	meta, err := local.FetchChainMetadata()
	require.NoError(t, err)
	assert.True(t, meta.AccumulatedWork.Eq(remote.Tip().Accumulated.TotalAccumulatedDifficulty))

	require.Equal(t, []BlockSyncInfo{{Peer: "remote", LocalHeight: 0, TipHeight: 25}}, started)
	require.Len(t, progress, 25)
	for i, h := range progress {
		assert.EqualValues(t, i+1, h)
	}
	require.NotNil(t, completed)
	assert.Equal(t, remote.Tip().Hash(), completed.Hash())

	for _, blk := range remote.Blocks(20, 25) {
		got, err := local.FetchBlock(blk.Hash())
		require.NoError(t, err)
		assert.Equal(t, blk.ToProto(), got.ToProto())
	}

	// caught up: nothing to do
	require.NoError(t, s.Synchronize(context.Background()))
	assert.Len(t, progress, 25)
	assert.Len(t, started, 1)
}

func TestBlockSyncResumesFromBestBlock(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(15)

	local := newTestStore(t)
	remote.WriteBlocks(local, 1, 9)
	remote.WriteHeaders(local, 10, 15)

	var progress []uint64
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, NewStaticPeers(servingPeer(t, "remote", remote)),
		OnProgress(func(info BlockSyncInfo) { progress = append(progress, info.LocalHeight) }))
	require.NoError(t, s.Synchronize(context.Background()))

	assert.Equal(t, []uint64{10, 11, 12, 13, 14, 15}, progress)
	requireBestBlock(t, local, remote.Tip())
	requireSameRoots(t, remote.Store(), local)
}

func TestBlockSyncNoPeers(t *testing.T) {
	local := newTestStore(t)
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, NewStaticPeers())
	require.ErrorIs(t, s.Synchronize(context.Background()), ErrNoSyncPeers)

	remote := factory.NewChainBuilder(t, "remote")
	peers := NewStaticPeers(servingPeer(t, "remote", remote))
	peers.BanPeer("remote", "test", config.TestSyncConfig().BanPeriod)
	s = newBlockSynchronizer(t, config.TestSyncConfig(), local, peers)
	require.ErrorIs(t, s.Synchronize(context.Background()), ErrNoSyncPeers)
}

func TestBlockSyncChainLinkageFailure(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(8)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 8)

	// the peer skips block 3, so block 4 does not link to block 2
	bad := servingPeer(t, "bad", remote)
	bad.Client = &tamperingClient{SyncClient: bad.Client, block: func(b *types.Block) *types.Block {
		if b.Height() == 3 {
			return nil
		}
		return b
	}}
	peers := NewStaticPeers(bad, servingPeer(t, "good", remote))

	var progress []uint64
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, peers,
		OnProgress(func(info BlockSyncInfo) { progress = append(progress, info.LocalHeight) }))

	err := s.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrChainLinkage)
	var perr *PeerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PeerID("bad"), perr.Peer)
	assert.True(t, IsRetryable(err))

	// blocks before the broken link stay committed
	assert.Equal(t, []uint64{1, 2}, progress)
	requireBestBlock(t, local, remote.ChainHeader(2))
	meta, err := local.FetchChainMetadata()
	require.NoError(t, err)
	assert.True(t, meta.AccumulatedWork.Eq(remote.ChainHeader(2).Accumulated.TotalAccumulatedDifficulty))
	assert.Equal(t, []PeerID{"bad"}, peers.Banned())

	// the next round picks the remaining peer and resumes at block 3
	require.NoError(t, s.Synchronize(context.Background()))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, progress)
	requireBestBlock(t, local, remote.Tip())
	requireSameRoots(t, remote.Store(), local)
}

func TestBlockSyncInvalidBody(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(5)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 5)

	bad := servingPeer(t, "bad", remote)
	bad.Client = &tamperingClient{SyncClient: bad.Client, block: func(b *types.Block) *types.Block {
		if b.Height() != 3 {
			return b
		}
		body := &types.AggregateBody{
			Inputs:  b.Body.Inputs,
			Outputs: append(append([]*types.TransactionOutput(nil), b.Body.Outputs...), factory.MakeOutput("extra")),
			Kernels: b.Body.Kernels,
		}
		factory.SortBody(body)
		return &types.Block{Header: b.Header, Body: body}
	}}
	peers := NewStaticPeers(bad)

	cfg := config.TestSyncConfig()
	cfg.BanOnChainLinkageFailure = false
	s := newBlockSynchronizer(t, cfg, local, peers)

	err := s.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrBlockValidation)
	require.ErrorIs(t, err, validation.ErrInvalidMMRRoot)
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.EqualValues(t, 3, verr.Height)

	requireBestBlock(t, local, remote.ChainHeader(2))
	assert.Empty(t, peers.Banned())
}

func TestBlockSyncUnknownHeader(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(3)
	other := factory.NewChainBuilder(t, "other")
	other.AddBlocks(1)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 3)

	bad := servingPeer(t, "bad", remote)
	bad.Client = &tamperingClient{SyncClient: bad.Client, block: func(b *types.Block) *types.Block {
		if b.Height() == 1 {
			return other.Block(1)
		}
		return b
	}}
	peers := NewStaticPeers(bad)
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, peers)

	err := s.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrUnknownHeader)
	requireBestBlock(t, local, remote.ChainHeader(0))
	assert.Equal(t, []PeerID{"bad"}, peers.Banned())
}

func TestBlockSyncStreamEndsEarly(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(8)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 8)

	short := servingPeer(t, "short", remote)
	short.Client = &tamperingClient{SyncClient: short.Client, block: func(b *types.Block) *types.Block {
		if b.Height() > 5 {
			return nil
		}
		return b
	}}
	down := SyncPeer{ID: "down", Client: unreachableClient{}}
	peers := NewStaticPeers(down, short)
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, peers)

	// the unreachable peer is skipped, the short stream is a protocol
	// violation that moves on to the next peer, of which there is none
	err := s.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrProtocol)
	requireBestBlock(t, local, remote.ChainHeader(5))
	assert.Equal(t, []PeerID{"short"}, peers.Banned())
}

func TestBlockSyncUnreachablePeerIsSkipped(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(4)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 4)

	peers := NewStaticPeers(SyncPeer{ID: "down", Client: unreachableClient{}}, servingPeer(t, "up", remote))
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, peers)
	require.NoError(t, s.Synchronize(context.Background()))
	requireBestBlock(t, local, remote.Tip())
	assert.Empty(t, peers.Banned())

	// with only the unreachable peer, the error is a retryable connectivity
	// failure
	remote.AddBlocks(1)
	remote.WriteHeaders(local, 5, 5)
	s = newBlockSynchronizer(t, config.TestSyncConfig(), local, NewStaticPeers(SyncPeer{ID: "down", Client: unreachableClient{}}))
	err := s.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrConnectivity)
	assert.True(t, IsRetryable(err))
}

func TestBlockSyncCanceled(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(10)

	local := newTestStore(t)
	remote.WriteHeaders(local, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newBlockSynchronizer(t, config.TestSyncConfig(), local, NewStaticPeers(servingPeer(t, "remote", remote)),
		OnProgress(func(info BlockSyncInfo) {
			if info.LocalHeight == 4 {
				cancel()
			}
		}))

	err := s.Synchronize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))

	// the session stops between blocks: whatever was committed is whole
	meta, err := local.FetchChainMetadata()
	require.NoError(t, err)
	require.GreaterOrEqual(t, meta.Height, uint64(4))
	require.Less(t, meta.Height, uint64(10))
	requireBestBlock(t, local, remote.ChainHeader(meta.Height))
}
