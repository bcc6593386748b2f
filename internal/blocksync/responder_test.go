package blocksync

import (
	"context"
	"io"
	"testing"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/test/factory"
	"github.com/mmrnode/mmrnode/libs/log"
	syncproto "github.com/mmrnode/mmrnode/proto/mmrnode/sync"
	"github.com/mmrnode/mmrnode/types"
)

// untouchableStore fails the test on any read or write.
type untouchableStore struct {
	store.BlockStore
	t *testing.T
}

func (s untouchableStore) FetchChainMetadata() (*types.ChainMetadata, error) {
	s.t.Fatal("store accessed")
	return nil, nil
}

func (s untouchableStore) FetchHeaderHeight([]byte) (uint64, error) {
	s.t.Fatal("store accessed")
	return 0, nil
}

func headerHashes(headers []*types.BlockHeader) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = h.Hash().String()
	}
	return out
}

func hashes(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = factory.MakeCommitment("locator", i)[1:]
	}
	return out
}

func TestFindChainSplitRejectsOversizedRequests(t *testing.T) {
	r := NewResponder(log.NewTestingLogger(t), untouchableStore{t: t}, 10, NopMetrics())

	testCases := []struct {
		name string
		req  *syncproto.FindChainSplitRequest
	}{
		{"too many hashes", &syncproto.FindChainSplitRequest{BlockHashes: hashes(501), HeaderCount: 1}},
		{"too many headers", &syncproto.FindChainSplitRequest{BlockHashes: hashes(1), HeaderCount: 101}},
		{"no hashes", &syncproto.FindChainSplitRequest{HeaderCount: 1}},
		{"nil request", nil},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.FindChainSplit(tc.req)
			require.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestFindChainSplit(t *testing.T) {
	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(10)
	other := factory.NewChainBuilder(t, "other")
	other.AddBlocks(3)

	r := NewResponder(log.NewTestingLogger(t), b.Store(), 10, NopMetrics())
	hashOf := func(h uint64) []byte { return b.ChainHeader(h).Hash() }

	split, err := r.FindChainSplit(&syncproto.FindChainSplitRequest{
		BlockHashes: [][]byte{other.ChainHeader(3).Hash(), hashOf(5), hashOf(3)},
		HeaderCount: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, split.FoundHashIndex)
	assert.EqualValues(t, 10, split.TipHeight)
	assert.Equal(t, headerHashes(b.Headers(6, 8)), headerHashes(split.Headers))

	// the headers stop at the tip
	split, err = r.FindChainSplit(&syncproto.FindChainSplitRequest{BlockHashes: [][]byte{hashOf(9)}, HeaderCount: 5})
	require.NoError(t, err)
	assert.Equal(t, headerHashes(b.Headers(10, 10)), headerHashes(split.Headers))

	split, err = r.FindChainSplit(&syncproto.FindChainSplitRequest{BlockHashes: [][]byte{hashOf(10)}, HeaderCount: 5})
	require.NoError(t, err)
	assert.Empty(t, split.Headers)

	// the largest accepted request
	locator := append(hashes(499), hashOf(0))
	split, err = r.FindChainSplit(&syncproto.FindChainSplitRequest{BlockHashes: locator, HeaderCount: 100})
	require.NoError(t, err)
	assert.EqualValues(t, 499, split.FoundHashIndex)
	assert.Len(t, split.Headers, 10)

	_, err = r.FindChainSplit(&syncproto.FindChainSplitRequest{BlockHashes: [][]byte{other.ChainHeader(2).Hash()}})
	require.ErrorIs(t, err, ErrNotFound)
}

func collectBlocks(t *testing.T, r *Responder, req *syncproto.SyncBlocksRequest) ([]uint64, error) {
	var heights []uint64
	err := r.SyncBlocks(context.Background(), req, func(b *types.Block) error {
		heights = append(heights, b.Height())
		return nil
	})
	return heights, err
}

func TestResponderSyncBlocks(t *testing.T) {
	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(12)
	hashOf := func(h uint64) []byte { return b.ChainHeader(h).Hash() }

	// a chunk size that does not divide the range
	r := NewResponder(log.NewTestingLogger(t), b.Store(), 5, NopMetrics())

	heights, err := collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: hashOf(0)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, heights)

	heights, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: hashOf(2), EndHash: hashOf(6)})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5, 6}, heights)

	heights, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: hashOf(2), Count: 3})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4, 5}, heights)

	heights, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: hashOf(12)})
	require.NoError(t, err)
	assert.Empty(t, heights)

	_, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: hashOf(6), EndHash: hashOf(2)})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = collectBlocks(t, r, &syncproto.SyncBlocksRequest{StartHash: factory.MakeCommitment("nowhere")[1:]})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResponderStopsWhenTheStoreRunsDry(t *testing.T) {
	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(10)

	// bodies up to 5, headers up to 10
	s := newTestStore(t)
	b.WriteBlocks(s, 1, 5)
	b.WriteHeaders(s, 6, 10)
	r := NewResponder(log.NewTestingLogger(t), s, 3, NopMetrics())

	heights, err := collectBlocks(t, r, &syncproto.SyncBlocksRequest{
		StartHash: b.ChainHeader(0).Hash(),
		EndHash:   b.ChainHeader(10).Hash(),
		Count:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, heights)

	var headers []uint64
	err = r.SyncHeaders(context.Background(), &syncproto.SyncHeadersRequest{StartHash: b.ChainHeader(3).Hash(), Count: 50},
		func(h *types.BlockHeader) error {
			headers = append(headers, h.Height)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5}, headers)

	_, err = r.GetHeaderByHeight(6)
	require.ErrorIs(t, err, ErrNotFound)
	h, err := r.GetHeaderByHeight(5)
	require.NoError(t, err)
	assert.Equal(t, b.ChainHeader(5).Hash(), h.Hash())

	meta, err := r.GetChainMetadata()
	require.NoError(t, err)
	assert.EqualValues(t, 5, meta.Height)
}

func TestResponderStreamCanceled(t *testing.T) {
	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(6)
	r := NewResponder(log.NewTestingLogger(t), b.Store(), 2, NopMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sent int
	err := r.SyncBlocks(ctx, &syncproto.SyncBlocksRequest{StartHash: b.Genesis().Hash()}, func(*types.Block) error {
		if sent++; sent == 2 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, sent)
}

func TestLocalClient(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	b := factory.NewChainBuilder(t, "remote")
	b.AddBlocks(6)
	c := NewLocalClient(NewResponder(log.NewTestingLogger(t), b.Store(), 4, NopMetrics()))
	ctx := context.Background()

	stream, err := c.SyncHeaders(ctx, &syncproto.SyncHeadersRequest{StartHash: b.Genesis().Hash()})
	require.NoError(t, err)
	var got []*types.BlockHeader
	for {
		h, err := stream.Recv()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, h)
	}
	assert.Equal(t, headerHashes(b.Headers(1, 6)), headerHashes(got))

	// errors of the responder surface on Recv
	blocks, err := c.SyncBlocks(ctx, &syncproto.SyncBlocksRequest{StartHash: factory.MakeCommitment("nowhere")[1:]})
	require.NoError(t, err)
	_, err = blocks.Recv()
	require.ErrorIs(t, err, ErrNotFound)

	// abandoning a stream releases its producer once ctx is canceled
	sctx, cancel := context.WithCancel(ctx)
	blocks, err = c.SyncBlocks(sctx, &syncproto.SyncBlocksRequest{StartHash: b.Genesis().Hash()})
	require.NoError(t, err)
	blk, err := blocks.Recv()
	require.NoError(t, err)
	assert.EqualValues(t, 1, blk.Height())
	cancel()
	for err == nil {
		_, err = blocks.Recv()
	}
	require.ErrorIs(t, err, context.Canceled)

	h, err := c.GetHeaderByHeight(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, b.ChainHeader(3).Hash(), h.Hash())
	meta, err := c.GetChainMetadata(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, meta.Height)
}
