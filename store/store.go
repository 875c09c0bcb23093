package store

import (
	"ldpos_chain/types"
)

// Order 列表查询的排序方向
type Order string

const (
	OrderAsc  = Order("asc")
	OrderDesc = Order("desc")
)

// Valid reports whether the order is one of asc or desc.
func (o Order) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// StoredTransaction 已入块的交易（简化形式）连同它的落块位置
type StoredTransaction struct {
	Transaction *types.Transaction `json:"transaction"`
	BlockID     string             `json:"blockId"`
	Height      uint64             `json:"height"`
	Index       int                `json:"indexInBlock"`
}

// Store 是链状态的唯一持久层。所有写入都来自区块处理器和创世初始化，
// 读取侧供内存池、共识循环和RPC使用。
//
// 余额、得票权重和时间戳都维护二级索引，Get*By*列表查询直接按索引顺序
// 迭代，不在内存里排序。
type Store interface {
	// Init seeds the chain state from the genesis doc. Calling it on a
	// store that already holds a chain tip is a no-op.
	Init(genDoc *types.GenesisDoc) error
	Close() error

	// accounts
	GetAccount(address string) (*types.Account, error)
	UpsertAccount(account *types.Account) error
	GetAccountsByBalance(offset, limit int, order Order) ([]*types.Account, error)
	GetMultisigWalletMembers(walletAddress string) ([]string, error)
	RegisterMultisigWallet(walletAddress string, memberAddresses []string, requiredSignatureCount uint32) error

	// delegates
	GetDelegate(address string) (*types.Delegate, error)
	HasDelegate(address string) (bool, error)
	UpsertDelegate(delegate *types.Delegate) error
	GetDelegatesByVoteWeight(offset, limit int, order Order) ([]*types.Delegate, error)

	// votes
	GetAccountVotes(voterAddress string) ([]string, error)
	HasVoteForDelegate(voterAddress, delegateAddress string) (bool, error)
	Vote(voterAddress, delegateAddress string) error
	Unvote(voterAddress, delegateAddress string) error

	// transactions
	GetTransaction(id string) (*StoredTransaction, error)
	HasTransaction(id string) (bool, error)
	GetTransactionsByTimestamp(offset, limit int, order Order) ([]*StoredTransaction, error)
	GetInboundTransactions(walletAddress string, fromTimestamp int64, limit int, order Order) ([]*StoredTransaction, error)
	GetOutboundTransactions(walletAddress string, fromTimestamp int64, limit int, order Order) ([]*StoredTransaction, error)
	GetTransactionsFromBlock(blockID string) ([]*StoredTransaction, error)
	GetInboundTransactionsFromBlock(walletAddress, blockID string) ([]*StoredTransaction, error)
	GetOutboundTransactionsFromBlock(walletAddress, blockID string) ([]*StoredTransaction, error)

	// blocks
	GetBlock(id string) (*types.Block, error)
	HasBlock(id string) (bool, error)
	GetBlockAtHeight(height uint64) (*types.Block, error)
	GetSignedBlockAtHeight(height uint64) (*types.Block, error)
	GetBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error)
	GetSignedBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error)
	GetBlocksBetweenHeights(fromHeight, toHeight uint64, limit int) ([]*types.Block, error)
	GetBlocksByTimestamp(offset, limit int, order Order) ([]*types.Block, error)
	GetLastBlockAtTimestamp(timestamp int64) (*types.Block, error)
	GetMaxBlockHeight() (uint64, error)
	UpsertBlock(block *types.Block, synched bool) error
}
