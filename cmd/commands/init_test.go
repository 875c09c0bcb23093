package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

// init命令要从空目录开始，不能用ResetTestRoot（它会预写钱包和创世）
func setupTestRoot(t *testing.T, testName string) *cfg.Config {
	rootDir, err := ioutil.TempDir("", testName)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(rootDir) })

	conf := cfg.TestConfig().SetRoot(rootDir)
	cfg.EnsureRoot(rootDir)
	return conf
}

func TestInitFiles(t *testing.T) {
	conf := setupTestRoot(t, "commands_init")

	old := config
	config = conf
	defer func() { config = old }()

	require.NoError(t, initFilesWithConfig(conf))

	// 幂等：重复执行不覆盖已有文件
	fwBefore := cryptoclient.LoadFileWallet(conf.WalletKeyFile(), conf.WalletStateFile(), "")
	require.NoError(t, initFilesWithConfig(conf))
	fwAfter := cryptoclient.LoadFileWallet(conf.WalletKeyFile(), conf.WalletStateFile(), "")
	assert.Equal(t, fwBefore.GetAddress(), fwAfter.GetAddress())

	genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	assert.Equal(t, conf.NetworkSymbol, genDoc.NetworkSymbol)
	require.Equal(t, 1, len(genDoc.Accounts))
	assert.Equal(t, fwAfter.GetAddress(), genDoc.Accounts[0].Address)
	assert.NotEmpty(t, genDoc.Accounts[0].ForgingPublicKey)
	require.Equal(t, 1, len(genDoc.Votes))
	assert.Equal(t, fwAfter.GetAddress(), genDoc.Votes[0].DelegateAddress)
	assert.Zero(t, genDoc.Timestamp%conf.Consensus.ForgingInterval.Milliseconds(),
		"genesis timestamp should sit on a slot boundary")
}

func TestGenGenesis(t *testing.T) {
	conf := setupTestRoot(t, "commands_gen_genesis")

	old := config
	config = conf
	defer func() { config = old }()

	genesisForgerCount = 3
	defer func() { genesisForgerCount = 0 }()

	require.NoError(t, genGenesisFile(GenGenesisCmd, nil))

	genDoc, err := types.GenesisDocFromFile(conf.GenesisFile())
	require.NoError(t, err)
	require.Equal(t, 4, len(genDoc.Accounts), "3 delegates plus the faucet wallet")
	require.Equal(t, 3, len(genDoc.Votes))

	// 钱包文件和创世账户一一对应
	configDir := filepath.Dir(conf.GenesisFile())
	for i := 0; i < 3; i++ {
		fw := cryptoclient.LoadFileWallet(
			filepath.Join(configDir, fmt.Sprintf("wallet_%v_key.json", i)),
			filepath.Join(configDir, fmt.Sprintf("wallet_%v_state.json", i)),
			"",
		)
		assert.Equal(t, genDoc.Accounts[i].Address, fw.GetAddress())
		assert.NotEmpty(t, genDoc.Accounts[i].ForgingPublicKey)
	}
	assert.Empty(t, genDoc.Accounts[3].ForgingPublicKey, "faucet wallet must not forge")

	// 创世文件已存在时拒绝执行
	err = genGenesisFile(GenGenesisCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
