package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"ldpos_chain/cryptoclient"
)

// GenWalletCmd 生成一个新钱包并打印seed和地址。
// 默认只打印，--save时写入config指定的钱包文件
var GenWalletCmd = &cobra.Command{
	Use:     "gen-wallet",
	Aliases: []string{"gen_wallet"},
	Short:   "Generate a new wallet and print its seed and address",
	PreRun:  deprecateSnakeCase,
	RunE:    genWallet,
}

var saveWallet bool

func init() {
	GenWalletCmd.Flags().BoolVar(&saveWallet, "save", false,
		"把钱包写入config指定的wallet_key/wallet_state文件")
}

func genWallet(cmd *cobra.Command, args []string) error {
	if saveWallet && tmos.FileExists(config.WalletKeyFile()) {
		return fmt.Errorf("wallet key at %s already exists", config.WalletKeyFile())
	}

	fw := cryptoclient.GenFileWallet(config.NetworkSymbol, config.WalletKeyFile(), config.WalletStateFile())
	if saveWallet {
		fw.Save()
		logger.Info("Generated wallet key", "path", config.WalletKeyFile())
	}

	jsbz, err := tmjson.Marshal(fw.Key)
	if err != nil {
		return err
	}

	fmt.Printf(`%v
`, string(jsbz))
	return nil
}
