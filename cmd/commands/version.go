package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"ldpos_chain/version"
)

// VersionCmd prints the node software version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.LDPoSCoreSemVer)
	},
}
