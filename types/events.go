package types

// 模块对外发布的事件名
const (
	// EventBootstrap 首次追上链尾后发布一次
	EventBootstrap = "bootstrap"
	// EventChainChanges 每个slot结束时发布：addBlock或skipBlock
	EventChainChanges = "chainChanges"
	// EventTransaction mempool接受一笔新交易后发布
	EventTransaction = "transaction"
)

const (
	ChainChangeAddBlock  = "addBlock"
	ChainChangeSkipBlock = "skipBlock"
)

// PeerStateKey consensus reactor在peer上记录对端链尾高度用的key，
// mempool reactor按它决定交易是否值得转发
const PeerStateKey = "ConsensusReactor.peerState"

// EventDataChainChanges chainChanges事件的载荷，区块为简化形式
type EventDataChainChanges struct {
	Type  string           `json:"type"`
	Block *SimplifiedBlock `json:"block"`
}

// EventDataTransaction transaction事件的载荷
type EventDataTransaction struct {
	Transaction *Transaction `json:"transaction"`
}
