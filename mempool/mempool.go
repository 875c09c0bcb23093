package mempool

import (
	"github.com/tendermint/tendermint/p2p"

	"ldpos_chain/types"
)

// Mempool 收集已认证、未上链的交易。
// 同一发送者的交易在各自的stream上严格串行地授权，
// 不同发送者并发；区块打包时按手续费和密钥序号从stream头部取交易
type Mempool interface {
	// AddTransaction 对新交易做完整认证后加入发送者stream。
	// 认证在调用者的goroutine上同步完成，结果直接返回
	AddTransaction(tx *types.Transaction, txInfo TxInfo) error

	// ReapForBlock 为下一个区块取出至多max笔交易：
	// 每个发送者一组保持组内顺序，组间按平均手续费从高到低
	ReapForBlock(max int) types.Transactions

	// Lock locks the mempool，更新mempool前必须lock mempool
	Lock()

	// Unlock the mempool
	Unlock()

	// Update 把已提交的交易从mempool中删去，刷新每个stream的账户
	// 快照并清除因密钥轮换而无法再验证的遗留交易。
	// NOTE: 只能在区块提交后调用，caller负责Lock/Unlock
	Update(height uint64, committed types.Transactions) error

	// ExpirePending 丢弃admission时间不晚于cutoff的交易，返回丢弃数
	ExpirePending(cutoffTimestamp int64) int

	// Flush 清空所有stream和cache
	Flush()

	// Size 返回等待打包的交易条数
	Size() int

	// TxsBytes 返回所有pending交易编码后的总字节数
	TxsBytes() int64

	// GetSignedPendingTransaction 按id返回完整形式的pending交易
	GetSignedPendingTransaction(id string) (*types.Transaction, error)

	// GetOutboundPendingTransactions 返回某地址stream上的全部pending交易
	GetOutboundPendingTransactions(walletAddress string) []*types.Transaction

	// EnableTxsAvailable 启用TxsAvailable通知，须在启动前调用
	EnableTxsAvailable()

	// TxsAvailable 每个高度在mempool非空时触发一次
	TxsAvailable() <-chan struct{}
}

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal peer ID used in the mempool to identify the
	// sender, storing 2 bytes with each tx instead of 20 bytes for the p2p.ID.
	SenderID uint16
	// SenderP2PID is the actual p2p.ID of the sender, used e.g. for logging.
	SenderP2PID p2p.ID
}
