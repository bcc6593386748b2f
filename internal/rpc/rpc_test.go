package rpc

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/blocksync"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/test/factory"
	"github.com/mmrnode/mmrnode/internal/validation"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

const bufSize = 1024 * 1024

// startServer serves s over an in-memory connection and returns a client
// for it.
func startServer(t *testing.T, s store.BlockStore, timeout time.Duration) *Client {
	t.Helper()
	listener := bufconn.Listen(bufSize)
	r := blocksync.NewResponder(log.NewTestingLogger(t), s, 4, blocksync.NopMetrics())
	srv := NewServer(log.NewTestingLogger(t), config.TestRPCConfig(), r, WithListener(listener))
	require.NoError(t, srv.Start(context.Background()))

	dialer := grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	})
	conn, err := grpc.DialContext(context.Background(), "bufnet", DialOptions(dialer)...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, conn.Close())
		require.NoError(t, srv.Stop())
	})
	return NewClient(conn, timeout)
}

func recvBlocks(t *testing.T, stream blocksync.BlockStream) ([]*types.Block, error) {
	var out []*types.Block
	for {
		b, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

func recvHeaders(t *testing.T, stream blocksync.HeaderStream) ([]*types.BlockHeader, error) {
	var out []*types.BlockHeader
	for {
		h, err := stream.Recv()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(12)
	c := startServer(t, b.Store(), 5*time.Second)
	ctx := context.Background()

	meta, err := c.GetChainMetadata(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 12, meta.Height)
	assert.Equal(t, b.Tip().Hash(), meta.BestBlock)
	assert.True(t, meta.AccumulatedWork.Eq(b.Tip().Accumulated.TotalAccumulatedDifficulty))

	h, err := c.GetHeaderByHeight(ctx, 3)
	require.NoError(t, err)
	if diff := cmp.Diff(b.ChainHeader(3).Header, h, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	split, err := c.FindChainSplit(ctx, &syncproto.FindChainSplitRequest{
		BlockHashes: [][]byte{factory.MakeCommitment("unknown")[1:], b.ChainHeader(5).Hash()},
		HeaderCount: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, split.FoundHashIndex)
	assert.EqualValues(t, 12, split.TipHeight)
	if diff := cmp.Diff(b.Headers(6, 8), split.Headers, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("split headers mismatch (-want +got):\n%s", diff)
	}

	blocks, err := c.SyncBlocks(ctx, &syncproto.SyncBlocksRequest{StartHash: b.Genesis().Hash()})
	require.NoError(t, err)
	got, err := recvBlocks(t, blocks)
	require.NoError(t, err)
	require.Len(t, got, 12)
	for i, blk := range got {
		want := b.Block(uint64(i + 1))
		assert.Equal(t, want.Hash(), blk.Hash())
		assert.Len(t, blk.Body.Outputs, len(want.Body.Outputs))
		assert.Len(t, blk.Body.Kernels, len(want.Body.Kernels))
	}

	headers, err := c.SyncHeaders(ctx, &syncproto.SyncHeadersRequest{StartHash: b.ChainHeader(10).Hash()})
	require.NoError(t, err)
	gotHeaders, err := recvHeaders(t, headers)
	require.NoError(t, err)
	if diff := cmp.Diff(b.Headers(11, 12), gotHeaders, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("streamed headers mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorCodes(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(3)
	c := startServer(t, b.Store(), 5*time.Second)
	ctx := context.Background()
	unknown := factory.MakeCommitment("unknown")[1:]

	_, err := c.GetHeaderByHeight(ctx, 4)
	assert.ErrorIs(t, err, blocksync.ErrNotFound)

	_, err = c.FindChainSplit(ctx, &syncproto.FindChainSplitRequest{BlockHashes: [][]byte{unknown}})
	assert.ErrorIs(t, err, blocksync.ErrNotFound)

	tooMany := make([][]byte, syncproto.MaxChainSplitHashes+1)
	for i := range tooMany {
		tooMany[i] = unknown
	}
	_, err = c.FindChainSplit(ctx, &syncproto.FindChainSplitRequest{BlockHashes: tooMany})
	assert.ErrorIs(t, err, blocksync.ErrBadRequest)

	// stream errors surface on the first receive
	blocks, err := c.SyncBlocks(ctx, &syncproto.SyncBlocksRequest{StartHash: unknown})
	require.NoError(t, err)
	_, err = blocks.Recv()
	assert.ErrorIs(t, err, blocksync.ErrNotFound)

	headers, err := c.SyncHeaders(ctx, &syncproto.SyncHeadersRequest{})
	require.NoError(t, err)
	_, err = headers.Recv()
	assert.ErrorIs(t, err, blocksync.ErrBadRequest)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.GetChainMetadata(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynchronizeOverGRPC(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	remote := factory.NewChainBuilder(t, "remote")
	remote.AddBlocks(14)
	c := startServer(t, remote.Store(), 5*time.Second)

	local, err := store.NewBlockStore(dbm.NewMemDB(), factory.GenesisBlock())
	require.NoError(t, err)
	cfg := config.TestSyncConfig()
	peers := blocksync.NewStaticPeers(blocksync.SyncPeer{ID: "remote", Client: c})
	logger := log.NewTestingLogger(t)
	ctx := context.Background()

	hs := blocksync.NewHeaderSynchronizer(logger, cfg, local, remote.Rules(), peers, blocksync.NopMetrics())
	require.NoError(t, hs.Synchronize(ctx))
	bs := blocksync.NewBlockSynchronizer(logger, cfg, local, peers, validation.NewBodyOnlyValidator(local), blocksync.NopMetrics())
	require.NoError(t, bs.Synchronize(ctx))

	meta, err := local.FetchChainMetadata()
	require.NoError(t, err)
	assert.EqualValues(t, 14, meta.Height)
	assert.Equal(t, remote.Tip().Hash(), meta.BestBlock)
	for _, tree := range store.Trees {
		want, err := remote.Store().FetchMMRRoot(tree)
		require.NoError(t, err)
		got, err := local.FetchMMRRoot(tree)
		require.NoError(t, err)
		assert.Equal(t, want, got, "%v root", tree)
	}
}

// stallingStore blocks every header fetch after the first until release is
// closed.
type stallingStore struct {
	store.BlockStore
	calls   int32
	release chan struct{}
}

func (s *stallingStore) FetchHeaders(from uint64, count int) ([]*types.BlockHeader, error) {
	if atomic.AddInt32(&s.calls, 1) > 1 {
		<-s.release
	}
	return s.BlockStore.FetchHeaders(from, count)
}

func TestStreamReceiveTimeout(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(10)
	s := &stallingStore{BlockStore: b.Store(), release: make(chan struct{})}
	c := startServer(t, s, 200*time.Millisecond)
	t.Cleanup(func() { close(s.release) })

	headers, err := c.SyncHeaders(context.Background(), &syncproto.SyncHeadersRequest{StartHash: b.Genesis().Hash()})
	require.NoError(t, err)

	// the first chunk arrives, then the server stalls
	for i := 1; i <= 4; i++ {
		h, err := headers.Recv()
		require.NoError(t, err)
		assert.EqualValues(t, i, h.Height)
		// slow consumers do not time out
		time.Sleep(50 * time.Millisecond)
	}
	_, err = headers.Recv()
	require.ErrorIs(t, err, blocksync.ErrConnectivity)
	assert.True(t, blocksync.IsRetryable(err))
}

// panickingStore panics on the first metadata lookup.
type panickingStore struct {
	store.BlockStore
	panicked int32
}

func (s *panickingStore) FetchChainMetadata() (*types.ChainMetadata, error) {
	if atomic.CompareAndSwapInt32(&s.panicked, 0, 1) {
		panic("corrupted metadata")
	}
	return s.BlockStore.FetchChainMetadata()
}

func TestServerRecoversFromPanics(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(2)
	c := startServer(t, &panickingStore{BlockStore: b.Store()}, 5*time.Second)

	_, err := c.GetChainMetadata(context.Background())
	require.ErrorIs(t, err, blocksync.ErrConnectivity)
	assert.Contains(t, err.Error(), "corrupted metadata")

	meta, err := c.GetChainMetadata(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, meta.Height)
}
