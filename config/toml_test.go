package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	for _, f := range files {
		p := filepath.Join(rootDir, f)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	require := require.New(t)

	// setup temp dir for test
	tmpDir, err := ioutil.TempDir("", "config-test")
	require.NoError(err)
	defer os.RemoveAll(tmpDir)

	// create root dir
	EnsureRoot(tmpDir)

	// make sure config is set properly
	data, err := ioutil.ReadFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(err)
	checkConfig(t, string(data))

	ensureFiles(t, tmpDir, "data")
}

func TestResetTestRootProducesLoadableFiles(t *testing.T) {
	cfg := ResetTestRoot("toml_test")
	defer os.RemoveAll(cfg.RootDir)

	// 创世文件可加载，所有锻造账户都有forging密钥
	genDoc, err := types.GenesisDocFromFile(cfg.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, cfg.NetworkSymbol, genDoc.NetworkSymbol)
	require.Len(t, genDoc.Accounts, cfg.Consensus.ForgerCount+1)
	require.Len(t, genDoc.Votes, cfg.Consensus.ForgerCount)

	forgers := 0
	for _, acc := range genDoc.Accounts {
		if len(acc.ForgingPublicKey) > 0 {
			forgers++
		}
	}
	assert.Equal(t, cfg.Consensus.ForgerCount, forgers)

	// 节点钱包是第一个锻造账户
	fw := cryptoclient.LoadFileWallet(cfg.WalletKeyFile(), cfg.WalletStateFile(), "")
	assert.Equal(t, genDoc.Accounts[0].Address, fw.GetAddress())

	checkConfigFile(t, filepath.Join(cfg.RootDir, defaultConfigFilePath))
}

func checkConfigFile(t *testing.T, path string) {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	checkConfig(t, string(data))
}

func checkConfig(t *testing.T, configFile string) {
	// list of words we expect in the config
	elems := []string{
		"moniker",
		"network_symbol",
		"genesis_file",
		"wallet_key_file",
		"db_backend",
		"forging_interval",
		"forger_count",
		"min_forger_block_signature_ratio",
		"block_signatures_to_provide",
		"max_pending_transactions_per_account",
		"fetch_block_limit",
		"catch_up_consensus_min_ratio",
		"api_limit",
		"persistent_peers",
	}
	for _, e := range elems {
		if !strings.Contains(configFile, e) {
			t.Errorf("config file was expected to contain %s but did not", e)
		}
	}
}
