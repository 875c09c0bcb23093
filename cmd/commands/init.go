package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

// InitFilesCmd initialises a fresh node: node key, wallet and a
// single-delegate genesis file.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an LDPoS node",
	RunE:  initFiles,
}

var initialBalance string

func init() {
	InitFilesCmd.Flags().StringVar(&initialBalance, "initial-balance",
		"100000000000000000", "创世账户的初始余额")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// node key
	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// wallet key
	var fw *cryptoclient.FileWallet
	walletKeyFile := config.WalletKeyFile()
	if tmos.FileExists(walletKeyFile) {
		fw = cryptoclient.LoadFileWallet(walletKeyFile, config.WalletStateFile(), os.Getenv(cfg.EnvPassword))
		logger.Info("Found wallet key", "path", walletKeyFile, "address", fw.GetAddress())
	} else {
		fw = cryptoclient.GenFileWallet(config.NetworkSymbol, walletKeyFile, config.WalletStateFile())
		fw.Save()
		logger.Info("Generated wallet key", "path", walletKeyFile, "address", fw.GetAddress())
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
	} else {
		genDoc, err := soloGenesisDoc(config, fw)
		if err != nil {
			return err
		}
		if err := genDoc.SaveAs(genFile); err != nil {
			return err
		}
		logger.Info("Generated genesis file", "path", genFile, "delegate", fw.GetAddress())
	}

	return nil
}

// soloGenesisDoc 单委托人创世：本节点的钱包既是唯一委托人也是初始资金账户。
// 多节点网络的创世用gen-genesis生成
func soloGenesisDoc(config *cfg.Config, fw *cryptoclient.FileWallet) (*types.GenesisDoc, error) {
	balance, err := types.ParseAmount(initialBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid --initial-balance: %w", err)
	}

	// 时间戳对齐到slot边界
	interval := config.Consensus.ForgingInterval.Milliseconds()
	now := time.Now().UnixNano() / int64(time.Millisecond)

	seed := fw.Key.Seed
	address := fw.GetAddress()
	genDoc := &types.GenesisDoc{
		NetworkSymbol: config.NetworkSymbol,
		Timestamp:     now - now%interval,
		Accounts: []types.GenesisAccount{{
			Address:              address,
			Type:                 types.AccountTypeSig,
			Balance:              balance,
			SigPublicKey:         cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0),
			NextSigPublicKey:     cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 1),
			NextSigKeyIndex:      1,
			ForgingPublicKey:     cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 0),
			NextForgingPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 1),
			NextForgingKeyIndex:  1,
		}},
		Votes: []types.GenesisVote{{
			VoterAddress:    address,
			DelegateAddress: address,
		}},
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return genDoc, nil
}
