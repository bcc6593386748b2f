package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/libs/bytes"
	"github.com/mmrnode/mmrnode/libs/log"
	"github.com/mmrnode/mmrnode/node"
	"github.com/mmrnode/mmrnode/types"
)

type headerTip struct {
	Height uint64         `json:"height"`
	Hash   bytes.HexBytes `json:"hash"`
}

type mmrStatus struct {
	Size uint64         `json:"size"`
	Root bytes.HexBytes `json:"root"`
}

type chainStatus struct {
	ChainID   string               `json:"chain_id"`
	Metadata  *types.ChainMetadata `json:"metadata"`
	HeaderTip headerTip            `json:"header_tip"`
	MMRs      map[string]mmrStatus `json:"mmrs"`
}

// MakeStatusCommand returns the command that prints the chain state of a
// stopped node as JSON.
func MakeStatusCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the chain metadata, the header tip and the accumulator roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, genDoc, err := node.OpenStore(conf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			status, err := loadStatus(s, genDoc.ChainID)
			if err != nil {
				return err
			}
			bz, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(bz))
			return nil
		},
	}
	addDBFlags(cmd, conf)
	return cmd
}

func loadStatus(s store.BlockStore, chainID string) (*chainStatus, error) {
	meta, err := s.FetchChainMetadata()
	if err != nil {
		return nil, err
	}
	tip, err := s.FetchTipHeader()
	if err != nil {
		return nil, err
	}
	status := &chainStatus{
		ChainID:   chainID,
		Metadata:  meta,
		HeaderTip: headerTip{Height: tip.Height(), Hash: tip.Hash()},
		MMRs:      make(map[string]mmrStatus, len(store.Trees)),
	}
	for _, tree := range store.Trees {
		size, err := s.FetchMMRSize(tree)
		if err != nil {
			return nil, err
		}
		root, err := s.FetchMMRRoot(tree)
		if err != nil {
			return nil, err
		}
		status.MMRs[tree.String()] = mmrStatus{Size: size, Root: root}
	}
	return status, nil
}
