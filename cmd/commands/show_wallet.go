package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
)

// ShowWalletCmd 打印本节点钱包的地址和各密钥链的下一个序号
var ShowWalletCmd = &cobra.Command{
	Use:     "show-wallet",
	Aliases: []string{"show_wallet"},
	Short:   "Show this node's wallet address and key indexes",
	RunE:    showWallet,
	PreRun:  deprecateSnakeCase,
}

func showWallet(cmd *cobra.Command, args []string) error {
	fw := cryptoclient.LoadFileWallet(config.WalletKeyFile(), config.WalletStateFile(), os.Getenv(cfg.EnvPassword))
	client := fw.Client()

	fmt.Printf("address: %v\n", client.Address())
	fmt.Printf("sigKeyIndex: %v\n", client.SigKeyIndex())
	fmt.Printf("multisigKeyIndex: %v\n", client.MultisigKeyIndex())
	fmt.Printf("forgingKeyIndex: %v\n", client.ForgingKeyIndex())
	return nil
}
