package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/libs/log"
	tmos "github.com/mmrnode/mmrnode/libs/os"
	"github.com/mmrnode/mmrnode/node"
)

// AddNodeFlags exposes some common configuration options on the command-line
// These are exposed for convenience of commands embedding a node
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	// sync flags
	cmd.Flags().Bool("sync.enable", conf.Sync.Enable, "sync the chain from the configured peers")
	cmd.Flags().String("sync.peers", conf.Sync.Peers, "comma-delimited ID@host:port peers to sync from")

	// rpc flags
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "gRPC sync server listen address, empty disables it")

	// storage flags
	cmd.Flags().Uint64("storage.pruning-horizon", conf.Storage.PruningHorizon,
		"number of blocks below the tip that can be rewound, 0 keeps all")

	// instrumentation flags
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus, "serve Prometheus metrics")

	addDBFlags(cmd, conf)
}

func addDBFlags(cmd *cobra.Command, conf *config.Config) {
	cmd.Flags().String(
		"db-backend",
		conf.DBBackend,
		"database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb")
	cmd.Flags().String(
		"db-dir",
		conf.DBPath,
		"database directory")
}

// MakeRunNodeCommand returns the command that starts a node and runs it
// until it receives SIGTERM or SIGINT.
func MakeRunNodeCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the mmrnode base node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := node.NewDefault(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}
			logger.Info("started node", "chain_id", n.GenesisDoc().ChainID, "rpc_addr", n.RPCAddr())

			// Stop upon receiving SIGTERM or CTRL-C.
			tmos.TrapSignal(logger, func() {
				if n.IsRunning() {
					if err := n.Stop(); err != nil {
						logger.Error("unable to stop the node", "error", err)
					}
				}
			})

			n.Wait()
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
