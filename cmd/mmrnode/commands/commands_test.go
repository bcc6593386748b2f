package commands

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/blocksync"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/internal/test/factory"
	tmbytes "github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/node"
	"github.com/mmrnode/mmrnode/types"
)

func testHome(t *testing.T) *config.Config {
	conf := config.TestConfig().SetRoot(t.TempDir())
	conf.DBBackend = string(dbm.GoLevelDBBackend)
	config.EnsureRoot(conf.RootDir)
	return conf
}

func TestInitFiles(t *testing.T) {
	conf := testHome(t)
	logger := log.NewNopLogger()

	require.NoError(t, initFiles(conf, logger, "test-chain"))
	assert.FileExists(t, conf.ConfigFile())
	genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, "test-chain", genDoc.ChainID)
	assert.EqualValues(t, 0, genDoc.Block.Height())

	// existing files are kept
	require.NoError(t, initFiles(conf, logger, "other-chain"))
	again, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, "test-chain", again.ChainID)
	assert.Equal(t, genDoc.Block.Hash(), again.Block.Hash())

	// the generated genesis opens a store
	s, _, err := node.OpenStore(conf, logger)
	require.NoError(t, err)
	defer s.Close()
	meta, err := s.FetchChainMetadata()
	require.NoError(t, err)
	assert.Equal(t, genDoc.Block.Hash(), meta.BestBlock)
}

func TestNewGenesisBlock(t *testing.T) {
	now := time.Unix(1_650_000_000, 0)
	a, err := newGenesisBlock(now)
	require.NoError(t, err)
	require.NoError(t, a.ValidateBasic())
	assert.EqualValues(t, now.Unix(), a.Header.Timestamp)

	b, err := newGenesisBlock(now)
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash(), "keys are fresh for every genesis")

	_, err = newGenesisBlock(time.Unix(0, 0))
	require.Error(t, err)
}

// openTestChain writes the test genesis into conf and returns the store
// of the node with blocks 1..8 and headers up to 10.
func openTestChain(t *testing.T, conf *config.Config) (*store.DBStore, *factory.ChainBuilder) {
	genDoc := &types.GenesisDoc{ChainID: "test-chain", Block: factory.GenesisBlock()}
	require.NoError(t, genDoc.ValidateAndComplete())
	require.NoError(t, genDoc.SaveAs(conf.GenesisFile()))

	b := factory.NewChainBuilder(t, "cmd")
	b.AddBlocks(10)

	s, _, err := node.OpenStore(conf, log.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	b.WriteBlocks(s, 1, 8)
	b.WriteHeaders(s, 9, 10)
	return s, b
}

func TestStatus(t *testing.T) {
	s, b := openTestChain(t, testHome(t))

	status, err := loadStatus(s, "test-chain")
	require.NoError(t, err)
	assert.Equal(t, "test-chain", status.ChainID)
	assert.EqualValues(t, 8, status.Metadata.Height)
	assert.Equal(t, b.ChainHeader(8).Hash(), status.Metadata.BestBlock)
	assert.EqualValues(t, 10, status.HeaderTip.Height)
	assert.Equal(t, b.Tip().Hash(), status.HeaderTip.Hash)
	require.Len(t, status.MMRs, len(store.Trees))
	for _, tree := range store.Trees {
		size, err := b.Store().FetchMMRSize(tree)
		require.NoError(t, err)
		assert.Less(t, status.MMRs[tree.String()].Size, size, "%v size", tree)
	}

	bz, err := json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(bz), `"chain_id":"test-chain"`)
}

func TestRewind(t *testing.T) {
	s, b := openTestChain(t, testHome(t))

	// nothing above the header tip
	blocks, headers, err := rewindTo(s, 10)
	require.NoError(t, err)
	assert.Zero(t, blocks)
	assert.Zero(t, headers)

	blocks, headers, err = rewindTo(s, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, blocks)
	assert.EqualValues(t, 5, headers)

	status, err := loadStatus(s, "test-chain")
	require.NoError(t, err)
	assert.EqualValues(t, 5, status.Metadata.Height)
	assert.EqualValues(t, 5, status.HeaderTip.Height)
	assert.True(t, status.Metadata.AccumulatedWork.Eq(b.ChainHeader(5).Accumulated.TotalAccumulatedDifficulty))

	// the accumulators match a chain that never went past 5
	want, err := store.NewBlockStore(dbm.NewMemDB(), factory.GenesisBlock())
	require.NoError(t, err)
	b.WriteBlocks(want, 1, 5)
	for _, tree := range store.Trees {
		wantRoot, err := want.FetchMMRRoot(tree)
		require.NoError(t, err)
		assert.Equal(t, tmbytes.HexBytes(wantRoot), status.MMRs[tree.String()].Root, "%v root", tree)
	}

	// rewound blocks are kept as orphans
	_, err = s.FetchOrphan(b.ChainHeader(8).Hash())
	require.NoError(t, err)

	// pruned blocks cannot be rewound
	require.NoError(t, s.Write(store.NewDBTransaction().SetPruningHorizon(2)))
	pruned, err := blocksync.Prune(log.NewNopLogger(), s)
	require.NoError(t, err)
	require.EqualValues(t, 3, pruned)

	_, _, err = rewindTo(s, 2)
	require.ErrorIs(t, err, store.ErrBeyondPrunedHeight)
	blocks, _, err = rewindTo(s, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, blocks)
}
