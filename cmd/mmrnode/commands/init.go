package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/internal/store"
	"github.com/mmrnode/mmrnode/libs/log"
	tmos "github.com/mmrnode/mmrnode/libs/os"
	"github.com/mmrnode/mmrnode/types"
)

// MakeInitCommand returns the command that writes the default configuration
// and a fresh genesis file to the home directory. Existing files are kept.
func MakeInitCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var chainID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the node home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initFiles(conf, logger, chainID)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id of the genesis file (default: random)")
	return cmd
}

func initFiles(conf *config.Config, logger log.Logger, chainID string) error {
	cfgFile := conf.ConfigFile()
	if tmos.FileExists(cfgFile) {
		logger.Info("found config file", "path", cfgFile)
	} else {
		if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
			return err
		}
		logger.Info("generated config file", "path", cfgFile)
	}

	genFile := conf.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("found genesis file", "path", genFile)
		return nil
	}
	if chainID == "" {
		chainID = "mmrnode-" + uuid.NewString()[:8]
	}
	block, err := newGenesisBlock(time.Now())
	if err != nil {
		return err
	}
	genDoc := &types.GenesisDoc{ChainID: chainID, Block: block}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("generated genesis file", "path", genFile, "chain_id", chainID, "hash", block.Hash())
	return nil
}

// newGenesisBlock creates a genesis block holding a single output and the
// kernel balancing it, both keyed by freshly generated keys.
func newGenesisBlock(now time.Time) (*types.Block, error) {
	outputKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	excessKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	commitment := outputKey.PubKey().SerializeCompressed()
	proof := blake2b.Sum256(commitment)
	excess := excessKey.PubKey().SerializeCompressed()
	msg := blake2b.Sum256(excess)
	sig, err := schnorr.Sign(excessKey, msg[:])
	if err != nil {
		return nil, fmt.Errorf("sign genesis kernel: %w", err)
	}

	body := &types.AggregateBody{
		Outputs: []*types.TransactionOutput{{Commitment: commitment, RangeProof: proof[:]}},
		Kernels: []*types.TransactionKernel{{Excess: excess, ExcessSig: sig.Serialize()}},
	}
	if err := body.ValidateBasic(); err != nil {
		return nil, err
	}
	if now.Unix() <= 0 {
		return nil, errors.New("genesis time must be after the unix epoch")
	}
	return store.NewGenesisBlock(uint64(now.Unix()), types.PowAlgoSha3x, body)
}
