package state

import (
	"time"

	"ldpos_chain/store"
	"ldpos_chain/types"
)

// MakeGenesisState 初始化创世状态。store已有链尾时Init是no-op，
// 返回的state总是反映store的当前链尾
func MakeGenesisState(st store.Store, genDoc *types.GenesisDoc, forgerCount int) (State, error) {
	if err := st.Init(genDoc); err != nil {
		return State{}, err
	}
	return LoadState(st, genDoc.NetworkSymbol, forgerCount)
}

// LoadState 从store读出链尾区块和活跃委托人，重建内存状态
func LoadState(st store.Store, networkSymbol string, forgerCount int) (State, error) {
	height, err := st.GetMaxBlockHeight()
	if err != nil {
		return State{}, err
	}
	tip, err := st.GetBlockAtHeight(height)
	if err != nil {
		return State{}, err
	}
	delegates, err := ActiveDelegates(st, forgerCount)
	if err != nil {
		return State{}, err
	}

	return State{
		NetworkSymbol:      networkSymbol,
		Height:             tip.Height,
		LastBlockID:        tip.ID,
		LastBlockTimestamp: tip.Timestamp,
		LastBlockTime:      time.Now(),
		Delegates:          delegates,
	}, nil
}

// ActiveDelegates 取得票权重最高的forgerCount个委托人，
// 构成下一轮slot轮转的集合
func ActiveDelegates(st store.Store, forgerCount int) (*types.DelegateSet, error) {
	delegates, err := st.GetDelegatesByVoteWeight(0, forgerCount, store.OrderDesc)
	if err != nil {
		return nil, err
	}
	return types.NewDelegateSet(delegates), nil
}

// State 是slot循环推进的内存链尾快照。
// 值语义：ApplyBlock返回新的state，旧值不会被修改
type State struct {
	NetworkSymbol string

	// 最后处理的区块
	Height             uint64
	LastBlockID        string
	LastBlockTimestamp int64     // ms，对齐slot边界
	LastBlockTime      time.Time // 处理时间 - 物理时间

	// 活跃委托人缓存，每处理完一个区块后重建
	Delegates *types.DelegateSet
}

// 返回当前state的拷贝副本，deepcopy
func (state *State) Copy() State {
	newState := State{
		NetworkSymbol:      state.NetworkSymbol,
		Height:             state.Height,
		LastBlockID:        state.LastBlockID,
		LastBlockTimestamp: state.LastBlockTimestamp,
		LastBlockTime:      state.LastBlockTime,
	}
	if state.Delegates != nil {
		newState.Delegates = state.Delegates.Copy()
	}
	return newState
}

// IsEmpty reports whether the state has been initialized.
func (state *State) IsEmpty() bool {
	return state.NetworkSymbol == ""
}
