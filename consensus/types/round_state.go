package types

import (
	"fmt"
	"time"

	"ldpos_chain/types"
)

//-----------------------------------------------------------------------------
// RoundStepType enum type

// RoundStepType enumerates the phases the forging loop passes through within
// a single slot
type RoundStepType uint8

// RoundStepType
const (
	RoundStepCatchUp     = RoundStepType(0x01) // 向网络补齐本地缺失的区块
	RoundStepWaitSlot    = RoundStepType(0x02) // 等待下一个slot边界
	RoundStepForge       = RoundStepType(0x03) // 锻造本slot的区块，或等待锻造者的区块到达
	RoundStepCollectSigs = RoundStepType(0x04) // 收集活跃委托人的区块签名
	RoundStepProcess     = RoundStepType(0x05) // 签名达到法定数后提交区块
)

func (step RoundStepType) String() string {
	switch step {
	case RoundStepCatchUp:
		return "CatchUp"
	case RoundStepWaitSlot:
		return "WaitSlot"
	case RoundStepForge:
		return "Forge"
	case RoundStepCollectSigs:
		return "CollectSigs"
	case RoundStepProcess:
		return "Process"
	default:
		return "Unknown"
	}
}

// RoundState 锻造循环在单个slot内的全部易变状态。
// 并发访问由ConsensusState.mtx保护
type RoundState struct {
	Slot      int64
	StartTime time.Time // 进入本slot的物理时间
	Step      RoundStepType

	// slot轮转到的锻造者
	Forger *types.Delegate

	// 本slot已admit的候选区块和它收集到的委托人签名。
	// ActiveBlock一旦设置，同一slot内不再被替换
	ActiveBlock *types.Block
	Signatures  *BlockSignatureSet

	// ActiveBlock的锻造者是否启用了next forging key，
	// 最少交易数策略据此放行空区块
	DelegateChangedKeys bool

	// 已观察到double forge的slot时间戳，本地委托人永不为其签名
	LastDoubleForgedTimestamp int64
}

func (rs *RoundState) String() string {
	return fmt.Sprintf("RoundState{%d/%v block=%v sigs=%d}",
		rs.Slot, rs.Step, rs.ActiveBlock, rs.Signatures.Size())
}
