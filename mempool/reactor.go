package mempool

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tendermint/tendermint/libs/clist"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	cfg "ldpos_chain/config"
	"ldpos_chain/types"
)

const (
	MempoolChannel = byte(0x20)

	peerCatchupSleepIntervalMS = 100 // If peer is behind, sleep this amount

	// UnknownPeerID is the peer ID to use when running AddTransaction when there
	// is no peer (e.g. RPC)
	UnknownPeerID uint16 = 0

	maxActiveIDs = math.MaxUint16
)

// Reactor 在节点之间gossip pending交易。交易以签名完整的JSON形式
// 传播，接收方走和RPC提交一样的完整认证
type Reactor struct {
	p2p.BaseReactor

	config     *cfg.MempoolConfig
	consConfig *cfg.ConsensusConfig

	mempool *StreamMempool
	ids     *mempoolIDs
}

// PeerState describes the state kept on each peer by the consensus reactor.
type PeerState interface {
	GetHeight() uint64
}

type mempoolIDs struct {
	mtx       sync.RWMutex
	peerMap   map[p2p.ID]uint16 // map from p2p.ID to mempoolIDs
	nextID    uint16            // nextID指向最后一个可用ID+1的值，但该值不一定可用
	activeIDs map[uint16]struct{}
}

// ReserveForPeer 为peer节点附带一个唯一id
func (ids *mempoolIDs) ReserveForPeer(peer p2p.Peer) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	curID := ids.nextPeerID()
	ids.peerMap[peer.ID()] = curID
	ids.activeIDs[curID] = struct{}{}
}

// nextPeerID 返回下一个可用的id
// 由caller负责lock/unlock.
func (ids *mempoolIDs) nextPeerID() uint16 {
	if len(ids.activeIDs) == maxActiveIDs {
		panic(fmt.Sprintf("node has maximum %d active IDs and wanted to get one more", maxActiveIDs))
	}

	_, idExists := ids.activeIDs[ids.nextID]
	for idExists {
		ids.nextID++
		_, idExists = ids.activeIDs[ids.nextID]
	}
	curID := ids.nextID
	ids.nextID++
	return curID
}

// Reclaim 释放peer对应的id.
func (ids *mempoolIDs) Reclaim(peer p2p.Peer) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	removedID, ok := ids.peerMap[peer.ID()]
	if ok {
		delete(ids.activeIDs, removedID)
		delete(ids.peerMap, peer.ID())
	}
}

// GetForPeer 返回peer的id.
func (ids *mempoolIDs) GetForPeer(peer p2p.Peer) uint16 {
	ids.mtx.RLock()
	defer ids.mtx.RUnlock()

	return ids.peerMap[peer.ID()]
}

func newMempoolIDs() *mempoolIDs {
	return &mempoolIDs{
		peerMap:   make(map[p2p.ID]uint16),
		activeIDs: map[uint16]struct{}{0: {}},
		nextID:    1, // 为unknownPeerID保留0，本地提交的交易使用unknownPeerID
	}
}

func NewReactor(config *cfg.MempoolConfig, consConfig *cfg.ConsensusConfig, mempool *StreamMempool) *Reactor {
	reactor := &Reactor{
		config:     config,
		consConfig: consConfig,
		mempool:    mempool,
		ids:        newMempoolIDs(),
	}
	reactor.BaseReactor = *p2p.NewBaseReactor("Mempool", reactor)

	return reactor
}

// InitPeer implements Reactor
// 为peer生成一个唯一的id
// ConsensusReactor要负责在peer注册PeerState
func (memR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	memR.ids.ReserveForPeer(peer)
	return peer
}

// SetLogger sets the Logger on the reactor and the underlying mempool.
func (memR *Reactor) SetLogger(l log.Logger) {
	memR.Logger = l
	memR.mempool.SetLogger(l)
}

// OnStart implements p2p.BaseReactor.
func (memR *Reactor) OnStart() error {
	if !memR.broadcastEnabled() {
		memR.Logger.Info("Tx broadcasting is disabled")
	}
	go memR.expireRoutine()
	return nil
}

// GetChannels implements Reactor by returning the list of channels for this
// reactor.
func (memR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  MempoolChannel,
			Priority:            5,
			RecvMessageCapacity: 1024 * 1024,
		},
	}
}

// AddPeer implements Reactor.
// 启动broadcast routine在节点之间广播tx
func (memR *Reactor) AddPeer(peer p2p.Peer) {
	if memR.broadcastEnabled() {
		go memR.broadcastTxRoutine(peer)
	}
}

// RemovePeer implements Reactor.
func (memR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	memR.ids.Reclaim(peer)
	// broadcast routine checks if peer is gone and returns
}

// Receive implements Reactor.
// It adds any received transactions to the mempool.
func (memR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	tx := &types.Transaction{}
	if err := tmjson.Unmarshal(msgBytes, tx); err != nil {
		memR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
		memR.Switch.StopPeerForError(src, err)
		return
	}
	memR.Logger.Debug("Receive tx", "src", src, "chId", chID, "tx", tx)

	txInfo := TxInfo{SenderID: memR.ids.GetForPeer(src)}
	if src != nil {
		txInfo.SenderP2PID = src.ID()
	}
	err := memR.mempool.AddTransaction(tx, txInfo)
	if err != nil {
		if errors.Is(err, ErrTxInCache) || errors.Is(err, ErrTxPending) {
			memR.Logger.Debug("Tx already seen", "tx", tx, "err", err)
			return
		}
		memR.Logger.Info("Could not add tx", "tx", tx, "err", err)
	}
}

func (memR *Reactor) broadcastEnabled() bool {
	return memR.config.Broadcast && memR.consConfig.PropagationMode != cfg.PropagationModeNone
}

// --------------------------------

// broadcastTxRoutine 沿着mempool的广播链表把交易送给peer。
// 从该peer收到的交易不原路送回；每笔交易admission时抽到的随机
// 延迟到期后才转发；落后于交易admission高度的peer先等它追上
func (memR *Reactor) broadcastTxRoutine(peer p2p.Peer) {
	peerID := memR.ids.GetForPeer(peer)
	var next *clist.CElement

	for {
		if !memR.IsRunning() || !peer.IsRunning() {
			return
		}

		if next == nil {
			select {
			case <-memR.mempool.TxsWaitChan():
				if next = memR.mempool.TxsFront(); next == nil {
					continue
				}
			case <-peer.Quit():
				return
			case <-memR.Quit():
				return
			}
		}

		memTx := next.Value.(*mempoolTx)

		if peerState, ok := peer.Get(types.PeerStateKey).(PeerState); ok {
			if peerState.GetHeight()+1 < memTx.Height() {
				time.Sleep(peerCatchupSleepIntervalMS * time.Millisecond)
				continue
			}
		}

		if _, ok := memTx.senders.Load(peerID); !ok {
			if wait := memTx.eligibleAt - nowMs(); wait > 0 {
				time.Sleep(time.Duration(wait) * time.Millisecond)
			}
			if success := peer.Send(MempoolChannel, memTx.raw); !success {
				time.Sleep(peerCatchupSleepIntervalMS * time.Millisecond)
				continue
			}
			memR.Logger.Debug("Sent tx to peer", "tx", memTx.tx, "peer", peer.ID())
		}

		select {
		// 当next有下一个元素时，它的nextWaitCh关闭，<-会读出来nil，流程继续
		// 如果没有下一个元素，则会在这里block
		case <-next.NextWaitChan():
			next = next.Next()
		case <-peer.Quit():
			return
		case <-memR.Quit():
			return
		}
	}
}

// expireRoutine 周期性丢弃在mempool里滞留超过expiry的交易
func (memR *Reactor) expireRoutine() {
	if memR.config.PendingTransactionExpiryCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(memR.config.PendingTransactionExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := nowMs() - memR.config.PendingTransactionExpiry.Milliseconds()
			memR.mempool.ExpirePending(cutoff)
		case <-memR.Quit():
			return
		}
	}
}

func nowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
