package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/node"
)

// MakeRewindCommand returns the command that rewinds the chain of a stopped
// node to a given height. Rewound blocks are kept as orphans.
func MakeRewindCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var height uint64
	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "Rewind the block and header chain to a height",
		Long: `Rewind removes the blocks and headers above --height in a single
transaction. The node must be stopped. Blocks at or below the pruned height
cannot be rewound.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := node.OpenStore(conf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			blocks, headers, err := rewindTo(s, height)
			if err != nil {
				return err
			}
			logger.Info("rewound chain", "height", height, "blocks", blocks, "headers", headers)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&height, "height", 0, "height to rewind to")
	_ = cmd.MarkFlagRequired("height")
	addDBFlags(cmd, conf)
	return cmd
}

// rewindTo removes the blocks and headers above height and returns how many
// of each it removed.
func rewindTo(s store.BlockStore, height uint64) (blocks, headers uint64, err error) {
	meta, err := s.FetchChainMetadata()
	if err != nil {
		return 0, 0, err
	}
	tip, err := s.FetchTipHeader()
	if err != nil {
		return 0, 0, err
	}
	if height >= tip.Height() {
		return 0, 0, nil
	}
	if height < meta.PrunedHeight {
		return 0, 0, fmt.Errorf("cannot rewind to %d, blocks up to %d are pruned: %w",
			height, meta.PrunedHeight, store.ErrBeyondPrunedHeight)
	}

	txn := store.NewDBTransaction()
	for h := meta.Height; h > height; h-- {
		txn.RewindTipBlock()
		blocks++
	}
	for h := tip.Height(); h > height; h-- {
		txn.DeleteTipHeader()
		headers++
	}
	if err := s.Write(txn); err != nil {
		return 0, 0, err
	}
	return blocks, headers, nil
}
