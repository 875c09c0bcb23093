package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "ldpos_chain/cmd/commands"
	cfg "ldpos_chain/config"
	nm "ldpos_chain/node"
)

func main() {
	rootCmd := cmd.RootCmd
	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.GenNodeKeyCmd,
		cmd.GenWalletCmd,
		cmd.GenGenesisCmd,
		cmd.InitDBCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowWalletCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE: Users wishing to use an external store implementation or to
	// assemble extra reactors can copy this file and replace the
	// DefaultNewNode function.
	nodeFunc := nm.DefaultNewNode

	rootCmd.AddCommand(cmd.NewRunNodeCmd(nodeFunc))

	baseCmd := cli.PrepareBaseCmd(rootCmd, "LDPOS",
		os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultLDPoSDir)))
	if err := baseCmd.Execute(); err != nil {
		panic(err)
	}
}
