package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

// GenGenesisCmd 为多节点网络准备创世：生成forger-count个委托人钱包
// 和一个不参与锻造的资金钱包，写入wallets-dir，再据此生成创世文件。
// 每个委托人带一票创世自投票
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file and the delegate wallets for a cluster",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

var (
	genesisForgerCount int
	genesisBalance     string
	walletsDir         string
)

func init() {
	GenGenesisCmd.Flags().IntVar(&genesisForgerCount, "forger-count", 0,
		"创世委托人数量，不指定则取config里的forger_count")
	GenGenesisCmd.Flags().StringVar(&genesisBalance, "balance",
		"100000000000000000", "每个创世账户的初始余额")
	GenGenesisCmd.Flags().StringVar(&walletsDir, "wallets-dir", "",
		"钱包文件的输出目录，默认是config目录")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		return fmt.Errorf("genesis file at %s already exists", genFile)
	}

	forgerCount := genesisForgerCount
	if forgerCount <= 0 {
		forgerCount = config.Consensus.ForgerCount
	}
	if _, err := types.ParseAmount(genesisBalance); err != nil {
		return fmt.Errorf("invalid --balance: %w", err)
	}

	outDir := walletsDir
	if outDir == "" {
		outDir = filepath.Dir(genFile)
	}

	// 时间戳对齐到slot边界
	interval := config.Consensus.ForgingInterval.Milliseconds()
	now := time.Now().UnixNano() / int64(time.Millisecond)
	genDoc := &types.GenesisDoc{
		NetworkSymbol: config.NetworkSymbol,
		Timestamp:     now - now%interval,
	}

	for i := 0; i <= forgerCount; i++ {
		name := fmt.Sprintf("wallet_%v", i)
		if i == forgerCount {
			name = "wallet_faucet"
		}
		keyFile := filepath.Join(outDir, name+"_key.json")
		if tmos.FileExists(keyFile) {
			return fmt.Errorf("wallet key at %s already exists", keyFile)
		}

		fw := cryptoclient.GenFileWallet(
			config.NetworkSymbol,
			keyFile,
			filepath.Join(outDir, name+"_state.json"),
		)
		fw.Save()

		balance, _ := types.ParseAmount(genesisBalance)
		seed := fw.Key.Seed
		account := types.GenesisAccount{
			Address:          fw.GetAddress(),
			Type:             types.AccountTypeSig,
			Balance:          balance,
			SigPublicKey:     cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0),
			NextSigPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 1),
			NextSigKeyIndex:  1,
		}
		if i < forgerCount {
			account.ForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 0)
			account.NextForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 1)
			account.NextForgingKeyIndex = 1
			genDoc.Votes = append(genDoc.Votes, types.GenesisVote{
				VoterAddress:    fw.GetAddress(),
				DelegateAddress: fw.GetAddress(),
			})
		}
		genDoc.Accounts = append(genDoc.Accounts, account)

		logger.Info("Generated wallet", "path", keyFile,
			"address", fw.GetAddress(), "forging", i < forgerCount)
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "delegates", forgerCount)

	return nil
}
