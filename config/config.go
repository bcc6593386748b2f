package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/mmrnode/mmrnode/libs/log"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = log.LogFormatPlain
	// LogFormatJSON is a format for json output
	LogFormatJSON = log.LogFormatJSON

	// ConstantsDefault selects the production consensus constants
	ConstantsDefault = "default"
	// ConstantsTest selects constants any header satisfies
	ConstantsTest = "test"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultMMRNodeDir = ".mmrnode"
	defaultConfigDir  = "config"
	defaultDataDir    = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
)

// Config defines the top level configuration for a node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Storage         *StorageConfig         `mapstructure:"storage"`
	Sync            *SyncConfig            `mapstructure:"sync"`
	RPC             *RPCConfig             `mapstructure:"rpc"`
	Consensus       *ConsensusConfig       `mapstructure:"consensus"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Storage:         DefaultStorageConfig(),
		Sync:            DefaultSyncConfig(),
		RPC:             DefaultRPCConfig(),
		Consensus:       DefaultConsensusConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Storage:         TestStorageConfig(),
		Sync:            TestSyncConfig(),
		RPC:             TestRPCConfig(),
		Consensus:       TestConsensusConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Storage.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [storage] section: %w", err)
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [sync] section: %w", err)
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [rpc] section: %w", err)
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [consensus] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
	// Backends other than goleveldb and memdb need the matching build tag.
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the JSON file containing the genesis block
	Genesis string `mapstructure:"genesis-file"`
}

// DefaultBaseConfig returns a default base configuration for a node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:   defaultGenesisJSONPath,
		Moniker:   "mmrnode",
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log format (must be 'plain' or 'json')")
	}
	if cfg.DBBackend == "" {
		return errors.New("db-backend can't be empty")
	}
	return nil
}

// DefaultLogLevel defines a default log level as INFO.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// StorageConfig

// StorageConfig defines the configuration of the block store
type StorageConfig struct {
	// Number of blocks below the tip whose accumulator history is kept.
	// Older checkpoints are merged into the base snapshot, after which the
	// chain can no longer be rewound below them. 0 keeps everything.
	PruningHorizon uint64 `mapstructure:"pruning-horizon"`

	// Number of checkpoints the accumulator caches can rewind over without
	// replaying from the base snapshot.
	RewindHistLen int `mapstructure:"rewind-hist-len"`
}

// DefaultStorageConfig returns a default configuration for the block store
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		PruningHorizon: 0,
		RewindHistLen:  100,
	}
}

// TestStorageConfig returns a configuration for testing the block store
func TestStorageConfig() *StorageConfig {
	cfg := DefaultStorageConfig()
	cfg.RewindHistLen = 10
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *StorageConfig) ValidateBasic() error {
	if cfg.RewindHistLen < 1 {
		return errors.New("rewind-hist-len must be positive")
	}
	if cfg.PruningHorizon > 0 && cfg.PruningHorizon < uint64(cfg.RewindHistLen) {
		return fmt.Errorf("pruning-horizon %d must not be less than rewind-hist-len %d",
			cfg.PruningHorizon, cfg.RewindHistLen)
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig defines the configuration of header and block synchronization
type SyncConfig struct {
	// If true, the node catches up with its peers on start.
	Enable bool `mapstructure:"enable"`

	// Comma separated list of peers to sync from, as id@host:port
	Peers string `mapstructure:"peers"`

	// Number of blocks requested and buffered per chunk.
	BlockChunkSize int `mapstructure:"block-chunk-size"`

	// Number of headers committed per transaction during header sync.
	HeaderChunkSize int `mapstructure:"header-chunk-size"`

	// Number of goroutines validating block bodies.
	ValidationConcurrency int `mapstructure:"validation-concurrency"`

	// Timeout of a single request to a peer, including each stream receive.
	RPCTimeout time.Duration `mapstructure:"rpc-timeout"`

	// Pause between two sync rounds.
	RetryInterval time.Duration `mapstructure:"retry-interval"`

	// If true, a peer that sends a block not linking to the previous one, or
	// an invalid block, is banned for BanPeriod.
	BanOnChainLinkageFailure bool          `mapstructure:"ban-on-chain-linkage-failure"`
	BanPeriod                time.Duration `mapstructure:"ban-period"`
}

// DefaultSyncConfig returns a default configuration for synchronization
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Enable:                   true,
		Peers:                    "",
		BlockChunkSize:           10,
		HeaderChunkSize:          100,
		ValidationConcurrency:    4,
		RPCTimeout:               30 * time.Second,
		RetryInterval:            10 * time.Second,
		BanOnChainLinkageFailure: true,
		BanPeriod:                30 * time.Minute,
	}
}

// TestSyncConfig returns a configuration for testing synchronization
func TestSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.HeaderChunkSize = 4
	cfg.ValidationConcurrency = 2
	cfg.RPCTimeout = 5 * time.Second
	cfg.RetryInterval = 100 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.BlockChunkSize < 1 {
		return errors.New("block-chunk-size must be positive")
	}
	if cfg.HeaderChunkSize < 1 {
		return errors.New("header-chunk-size must be positive")
	}
	if cfg.ValidationConcurrency < 1 {
		return errors.New("validation-concurrency must be positive")
	}
	if cfg.RPCTimeout <= 0 {
		return errors.New("rpc-timeout must be positive")
	}
	if cfg.RetryInterval < 0 {
		return errors.New("retry-interval can't be negative")
	}
	if cfg.BanPeriod < 0 {
		return errors.New("ban-period can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// RPCConfig

// RPCConfig defines the configuration options for the gRPC sync server
type RPCConfig struct {
	// TCP or UNIX socket address for the gRPC server to listen on.
	// Empty disables the server.
	ListenAddress string `mapstructure:"laddr"`

	// Maximum size of a received or sent message, in bytes
	MaxRecvMsgSize int `mapstructure:"max-recv-msg-size"`
	MaxSendMsgSize int `mapstructure:"max-send-msg-size"`

	// Maximum number of concurrent streams per connection. 0 - unlimited.
	MaxConcurrentStreams uint32 `mapstructure:"max-concurrent-streams"`
}

// DefaultRPCConfig returns a default configuration for the RPC server
func DefaultRPCConfig() *RPCConfig {
	return &RPCConfig{
		ListenAddress:        "tcp://127.0.0.1:18142",
		MaxRecvMsgSize:       4 << 20,
		MaxSendMsgSize:       16 << 20,
		MaxConcurrentStreams: 100,
	}
}

// TestRPCConfig returns a configuration for testing the RPC server
func TestRPCConfig() *RPCConfig {
	cfg := DefaultRPCConfig()
	cfg.ListenAddress = "tcp://127.0.0.1:0"
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *RPCConfig) ValidateBasic() error {
	if cfg.ListenAddress != "" {
		if _, _, err := ParseListenAddress(cfg.ListenAddress); err != nil {
			return err
		}
	}
	if cfg.MaxRecvMsgSize < 0 {
		return errors.New("max-recv-msg-size can't be negative")
	}
	if cfg.MaxSendMsgSize < 0 {
		return errors.New("max-send-msg-size can't be negative")
	}
	return nil
}

// ParseListenAddress splits a listen address such as tcp://127.0.0.1:18142
// or unix:///tmp/node.sock into the network and address net.Listen takes.
func ParseListenAddress(addr string) (network, address string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	switch u.Scheme {
	case "tcp":
		if u.Host == "" {
			return "", "", fmt.Errorf("invalid listen address %q: missing host", addr)
		}
		return "tcp", u.Host, nil
	case "unix":
		return "unix", u.Path, nil
	default:
		return "", "", fmt.Errorf("invalid listen address %q: unsupported scheme %q", addr, u.Scheme)
	}
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig selects the consensus rules headers are validated with
type ConsensusConfig struct {
	// Consensus constants: default | test
	Constants string `mapstructure:"constants"`
}

// DefaultConsensusConfig returns a default configuration for the consensus rules
func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{Constants: ConstantsDefault}
}

// TestConsensusConfig returns a configuration for testing the consensus rules
func TestConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{Constants: ConstantsTest}
}

// ValidateBasic performs basic validation.
func (cfg *ConsensusConfig) ValidateBasic() error {
	switch cfg.Constants {
	case ConstantsDefault, ConstantsTest:
		return nil
	default:
		return fmt.Errorf("unknown constants %q", cfg.Constants)
	}
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "mmrnode",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
