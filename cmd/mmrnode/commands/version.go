package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmrnode/mmrnode/version"
)

var verbose bool

// VersionCmd prints the version of the binary.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return nil
		}
		values, err := json.MarshalIndent(struct {
			MMRNode       string `json:"mmrnode"`
			SyncProtocol  uint64 `json:"sync_protocol"`
			BlockProtocol uint64 `json:"block_protocol"`
		}{
			MMRNode:       version.Version,
			SyncProtocol:  uint64(version.SyncProtocol),
			BlockProtocol: uint64(version.BlockProtocol),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(values))
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol versions")
}
