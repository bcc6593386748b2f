package types_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmrnode/mmrnode/internal/test/factory"
	"github.com/mmrnode/mmrnode/types"
)

func TestGenesisBad(t *testing.T) {
	// test some bad ones from raw json
	testCases := [][]byte{
		{},              // empty
		{1, 1, 1, 1, 1}, // junk
		[]byte(`{}`),    // empty
		[]byte(`{"chain_id":"mychain"}`), // no block
		[]byte(`{"chain_id":"mychain","block":{"header":{"height":3}}}`),
	}
	for _, tc := range testCases {
		_, err := types.GenesisDocFromJSON(tc)
		assert.Error(t, err, "expected error for bad genDoc json %q", tc)
	}
}

func TestGenesisValidateAndComplete(t *testing.T) {
	genesis := factory.GenesisBlock()

	doc := &types.GenesisDoc{ChainID: "test-chain", Block: genesis}
	require.NoError(t, doc.ValidateAndComplete())
	assert.Equal(t, time.Unix(int64(factory.GenesisTimestamp), 0).UTC(), doc.GenesisTime)

	doc = &types.GenesisDoc{ChainID: "Lorem ipsum dolor sit amet, consectetuer adipiscing", Block: genesis}
	assert.Error(t, doc.ValidateAndComplete(), "chain id too long")

	doc = &types.GenesisDoc{ChainID: "test-chain", Block: genesis, GenesisTime: time.Unix(1, 0)}
	assert.Error(t, doc.ValidateAndComplete(), "time mismatch")

	noKernels := *genesis
	noKernels.Body = &types.AggregateBody{Outputs: genesis.Body.Outputs}
	doc = &types.GenesisDoc{ChainID: "test-chain", Block: &noKernels}
	assert.Error(t, doc.ValidateAndComplete())
}

func TestGenesisSaveAs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "genesis.json")

	genDoc := &types.GenesisDoc{ChainID: "test-chain", Block: factory.GenesisBlock()}
	require.NoError(t, genDoc.ValidateAndComplete())
	require.NoError(t, genDoc.SaveAs(file))

	genDoc2, err := types.GenesisDocFromFile(file)
	require.NoError(t, err)
	assert.Equal(t, genDoc.ChainID, genDoc2.ChainID)
	assert.True(t, genDoc.GenesisTime.Equal(genDoc2.GenesisTime))
	assert.Equal(t, genDoc.Block.Hash(), genDoc2.Block.Hash())
	assert.Len(t, genDoc2.Block.Body.Outputs, 1)

	_, err = types.GenesisDocFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(file, []byte("{"), 0600))
	_, err = types.GenesisDocFromFile(file)
	assert.Error(t, err)
}
