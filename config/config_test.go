package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	// set up some defaults
	cfg := DefaultConfig()
	assert.NotNil(cfg.Storage)
	assert.NotNil(cfg.Sync)
	assert.NotNil(cfg.RPC)

	// check the root dir stuff...
	cfg.SetRoot("/foo")
	cfg.Genesis = "bar"
	cfg.DBPath = "/opt/data"

	assert.Equal("/foo/bar", cfg.GenesisFile())
	assert.Equal("/opt/data", cfg.DBDir())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())
	assert.NoError(t, TestConfig().ValidateBasic())

	// tamper with block-chunk-size
	cfg.Sync.BlockChunkSize = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestBaseConfigValidateBasic(t *testing.T) {
	cfg := TestBaseConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with log format
	cfg.LogFormat = "invalid"
	assert.Error(t, cfg.ValidateBasic())
}

func TestStorageConfigValidateBasic(t *testing.T) {
	cfg := DefaultStorageConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.PruningHorizon = uint64(cfg.RewindHistLen) - 1
	assert.Error(t, cfg.ValidateBasic())

	cfg.PruningHorizon = 0
	cfg.RewindHistLen = 0
	assert.Error(t, cfg.ValidateBasic())
}

func TestSyncConfigValidateBasic(t *testing.T) {
	testcases := map[string]struct {
		modify    func(*SyncConfig)
		expectErr bool
	}{
		"BlockChunkSize":        {func(c *SyncConfig) { c.BlockChunkSize = 0 }, true},
		"HeaderChunkSize":       {func(c *SyncConfig) { c.HeaderChunkSize = -1 }, true},
		"ValidationConcurrency": {func(c *SyncConfig) { c.ValidationConcurrency = 0 }, true},
		"RPCTimeout":            {func(c *SyncConfig) { c.RPCTimeout = 0 }, true},
		"RetryInterval":         {func(c *SyncConfig) { c.RetryInterval = -time.Second }, true},
		"RetryInterval zero":    {func(c *SyncConfig) { c.RetryInterval = 0 }, false},
		"BanPeriod":             {func(c *SyncConfig) { c.BanPeriod = -time.Second }, true},
	}
	for desc, tc := range testcases {
		tc := tc
		t.Run(desc, func(t *testing.T) {
			cfg := DefaultSyncConfig()
			tc.modify(cfg)

			err := cfg.ValidateBasic()
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRPCConfigValidateBasic(t *testing.T) {
	cfg := DefaultRPCConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.ListenAddress = ""
	assert.NoError(t, cfg.ValidateBasic())

	cfg.ListenAddress = "http://127.0.0.1:80"
	assert.Error(t, cfg.ValidateBasic())

	cfg.ListenAddress = "tcp://127.0.0.1:1"
	cfg.MaxRecvMsgSize = -1
	assert.Error(t, cfg.ValidateBasic())
}

func TestParseListenAddress(t *testing.T) {
	network, addr, err := ParseListenAddress("tcp://127.0.0.1:18142")
	require.NoError(t, err)
	assert.Equal(t, "tcp", network)
	assert.Equal(t, "127.0.0.1:18142", addr)

	network, addr, err = ParseListenAddress("unix:///tmp/node.sock")
	require.NoError(t, err)
	assert.Equal(t, "unix", network)
	assert.Equal(t, "/tmp/node.sock", addr)

	_, _, err = ParseListenAddress("tcp://")
	assert.Error(t, err)
}

func TestConsensusConfigValidateBasic(t *testing.T) {
	assert.NoError(t, DefaultConsensusConfig().ValidateBasic())
	assert.NoError(t, TestConsensusConfig().ValidateBasic())
	assert.Error(t, (&ConsensusConfig{Constants: "mainnet"}).ValidateBasic())
}

func TestInstrumentationConfigValidateBasic(t *testing.T) {
	cfg := TestInstrumentationConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with maximum open connections
	cfg.MaxOpenConnections = -1
	assert.Error(t, cfg.ValidateBasic())
}
