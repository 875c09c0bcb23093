package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const testSymbol = "ldpos"

func TestMakeGenesisState(t *testing.T) {
	st := store.NewMemStore(log.TestingLogger())
	genDoc := cfg.TestGenesisDoc(testSymbol, 2)

	state, err := MakeGenesisState(st, genDoc, 2)
	require.NoError(t, err)
	assert.Equal(t, testSymbol, state.NetworkSymbol)
	assert.EqualValues(t, 0, state.Height)
	assert.Equal(t, genDoc.Timestamp, state.LastBlockTimestamp)
	require.Equal(t, 2, state.Delegates.Size())

	tip, err := st.GetBlockAtHeight(0)
	require.NoError(t, err)
	assert.Equal(t, tip.ID, state.LastBlockID)

	// 创世委托人权重相同，按地址升序排位
	first, second := state.Delegates.Delegates[0], state.Delegates.Delegates[1]
	assert.True(t, first.Address < second.Address)
	assert.Equal(t, first.VoteWeight.String(), second.VoteWeight.String())

	// store已有链尾时再次初始化落在同一个链尾上
	again, err := MakeGenesisState(st, genDoc, 2)
	require.NoError(t, err)
	assert.Equal(t, state.LastBlockID, again.LastBlockID)
	assert.Equal(t, state.Height, again.Height)

	loaded, err := LoadState(st, testSymbol, 2)
	require.NoError(t, err)
	assert.Equal(t, state.LastBlockID, loaded.LastBlockID)
	assert.Equal(t, state.LastBlockTimestamp, loaded.LastBlockTimestamp)
}

func TestStateCopy(t *testing.T) {
	st := store.NewMemStore(log.TestingLogger())
	state, err := MakeGenesisState(st, cfg.TestGenesisDoc(testSymbol, 2), 2)
	require.NoError(t, err)

	cp := state.Copy()
	cp.Height = 42
	cp.LastBlockID = "deadbeef"
	cp.Delegates.Delegates[0].VoteWeight = types.NewAmount(1)

	assert.EqualValues(t, 0, state.Height)
	assert.NotEqual(t, "deadbeef", state.LastBlockID)
	assert.NotEqual(t, "1", state.Delegates.Delegates[0].VoteWeight.String())
}

func TestActiveDelegatesCutoff(t *testing.T) {
	st := store.NewMemStore(log.TestingLogger())
	_, err := MakeGenesisState(st, cfg.TestGenesisDoc(testSymbol, 3), 3)
	require.NoError(t, err)

	// 插入一个权重更高的委托人，把榜尾挤出活跃集合
	seed := "heavy-delegate"
	heavy := types.NewDelegate(types.WalletAddressFromPublicKey(testSymbol,
		cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0)))
	heavy.ForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 0)
	heavy.NextForgingPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainForging, 1)
	heavy.NextForgingKeyIndex = 1
	heavy.VoteWeight, err = types.ParseAmount("200000000000000000")
	require.NoError(t, err)
	require.NoError(t, st.UpsertDelegate(heavy))

	active, err := ActiveDelegates(st, 2)
	require.NoError(t, err)
	require.Equal(t, 2, active.Size())
	assert.Equal(t, heavy.Address, active.Delegates[0].Address)
	assert.Equal(t, "100000000000000000", active.Delegates[1].VoteWeight.String())
}
