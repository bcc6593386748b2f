package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/mmrnode/mmrnode/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/mmrnode/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return writeFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string, cfg *Config) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(rootDir, cfg)
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/mmrnode/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.mmrnode" by default, but could be changed via $MMRNODE_HOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
# * goleveldb (github.com/syndtr/goleveldb)
#   - pure go
#   - stable
# * memdb
#   - nothing is persisted, for testing only
# Other backends need the matching build tag, e.g. go build -tags cleveldb
db-backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db-dir = "{{ .BaseConfig.DBPath }}"

# Output level for logging: debug | info | warn | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the genesis block
genesis-file = "{{ js .BaseConfig.Genesis }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###            Block Store Configuration Options    ###
#######################################################
[storage]

# Number of blocks below the tip whose accumulator history is kept.
# Older checkpoints are merged into the base snapshot, after which the
# chain can no longer be rewound below them. 0 keeps everything.
pruning-horizon = {{ .Storage.PruningHorizon }}

# Number of checkpoints the accumulator caches can rewind over without
# replaying from the base snapshot.
rewind-hist-len = {{ .Storage.RewindHistLen }}

#######################################################
###         Synchronization Configuration Options   ###
#######################################################
[sync]

# If true, the node catches up with its peers on start.
enable = {{ .Sync.Enable }}

# Comma separated list of peers to sync from, as id@host:port
peers = "{{ .Sync.Peers }}"

# Number of blocks requested and buffered per chunk.
block-chunk-size = {{ .Sync.BlockChunkSize }}

# Number of headers committed per transaction during header sync.
header-chunk-size = {{ .Sync.HeaderChunkSize }}

# Number of goroutines validating block bodies.
validation-concurrency = {{ .Sync.ValidationConcurrency }}

# Timeout of a single request to a peer, including each stream receive.
rpc-timeout = "{{ .Sync.RPCTimeout }}"

# Pause between two sync rounds.
retry-interval = "{{ .Sync.RetryInterval }}"

# If true, a peer that sends a block not linking to the previous one, or
# an invalid block, is banned for ban-period.
ban-on-chain-linkage-failure = {{ .Sync.BanOnChainLinkageFailure }}
ban-period = "{{ .Sync.BanPeriod }}"

#######################################################
###               gRPC Server Configuration Options ###
#######################################################
[rpc]

# TCP or UNIX socket address for the gRPC sync server to listen on.
# Empty disables the server.
laddr = "{{ .RPC.ListenAddress }}"

# Maximum size of a received or sent message, in bytes
max-recv-msg-size = {{ .RPC.MaxRecvMsgSize }}
max-send-msg-size = {{ .RPC.MaxSendMsgSize }}

# Maximum number of concurrent streams per connection. 0 - unlimited.
max-concurrent-streams = {{ .RPC.MaxConcurrentStreams }}

#######################################################
###         Consensus Configuration Options         ###
#######################################################
[consensus]

# Consensus constants: default | test
constants = "{{ .Consensus.Constants }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max-open-connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh home directory under dir holding the test
// configuration and returns it.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under dir
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	if err := writeDefaultConfigFileIfNone(rootDir, config); err != nil {
		return nil, err
	}
	config.Instrumentation.Namespace = fmt.Sprintf("%s_%s", config.Instrumentation.Namespace, testName)
	return config, nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
