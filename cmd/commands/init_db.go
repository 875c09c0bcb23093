package commands

import (
	"github.com/spf13/cobra"

	sm "ldpos_chain/state"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

var dbDir string

func init() {
	InitDBCmd.Flags().StringVar(&dbDir, "dir", "", "数据库目录，默认取config里的db路径")
}

// InitDBCmd 把创世状态预写进链数据库，库里已经有链时是空操作。
// 节点首次启动前跑一次可以提前暴露创世文件的问题
var InitDBCmd = &cobra.Command{
	Use:     "init-db",
	Aliases: []string{"init_db", "initdb"},
	Short:   "Materialize the genesis state into the chain database",
	PreRun:  deprecateSnakeCase,
	RunE:    initDB,
}

func initDB(cmd *cobra.Command, args []string) error {
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return err
	}

	dir := dbDir
	if dir == "" {
		dir = config.DBDir()
	}
	st, err := store.NewKVStore("chain", config.DBBackend, dir, logger.With("module", "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := sm.MakeGenesisState(st, genDoc, config.Consensus.ForgerCount)
	if err != nil {
		return err
	}

	logger.Info("Chain database initialized",
		"dir", dir,
		"height", state.Height,
		"blockId", state.LastBlockID,
		"delegates", state.Delegates.Size())
	return nil
}
