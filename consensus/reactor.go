package consensus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendermint/tendermint/libs/events"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	"github.com/tendermint/tendermint/p2p"

	cfg "ldpos_chain/config"
	"ldpos_chain/mempool"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const (
	// BlockChannel 传播slot候选区块
	BlockChannel = byte(0x30)

	// BlockSignatureChannel 传播活跃委托人的区块签名
	BlockSignatureChannel = byte(0x31)

	// SyncChannel 承载追链拉取、区块持有探测和pending交易补齐
	SyncChannel = byte(0x32)

	maxMsgSize = 1048576 // 1MB

	subscriber = "consensus-reactor"
)

// reactor在consensus的事件模型上监听的广播类事件。
// New*来自本地（立即或按锻造节奏延迟广播），Relay*来自peer
// （随机延迟后转播一次）
const (
	EventNewBlock            = "NewBlock"
	EventRelayBlock          = "RelayBlock"
	EventNewBlockSignature   = "NewBlockSignature"
	EventRelayBlockSignature = "RelayBlockSignature"
)

var (
	errNoSuitablePeer = errors.New("no suitable peer")
	errReactorStopped = errors.New("reactor is stopping")
)

// Reactor 在peer之间转播区块和区块签名，并应答peer的追链和
// 交易补齐请求。同时它实现PeerNetwork，是consensus主动触达
// 网络的出口
type Reactor struct {
	p2p.BaseReactor

	config     *cfg.ConsensusConfig
	syncConfig *cfg.SyncConfig
	consensus  *ConsensusState
	store      store.Store
	mempool    mempool.Mempool

	// 在途的sync请求，按reqID配对响应
	mtx       tmsync.Mutex
	nextReqID uint64
	pending   map[uint64]chan *SyncMessage
}

// NewReactor returns a new Reactor wired to the given consensus state.
// 构造的同时把自己作为peer网络注入consensus，追链引擎从此可用
func NewReactor(
	config *cfg.ConsensusConfig,
	syncConfig *cfg.SyncConfig,
	consensus *ConsensusState,
	store store.Store,
	mempool mempool.Mempool,
) *Reactor {
	conR := &Reactor{
		config:     config,
		syncConfig: syncConfig,
		consensus:  consensus,
		store:      store,
		mempool:    mempool,
		pending:    make(map[uint64]chan *SyncMessage),
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)
	consensus.SetPeerNetwork(conR)

	return conR
}

// SetLogger sets the Logger on the reactor and the underlying consensus state.
func (conR *Reactor) SetLogger(l log.Logger) {
	conR.Logger = l
	conR.consensus.SetLogger(l)
}

// OnStart implements p2p.BaseReactor. 锻造循环随reactor一起启动
func (conR *Reactor) OnStart() error {
	conR.Logger.Info("Reactor", "propagationMode", conR.config.PropagationMode)

	conR.subscribeToBroadcastEvents()

	return conR.consensus.Start()
}

// OnStop implements p2p.BaseReactor.
func (conR *Reactor) OnStop() {
	conR.unsubscribeFromBroadcastEvents()
	if err := conR.consensus.Stop(); err != nil {
		conR.Logger.Error("Failed to stop consensus state", "err", err)
	}
}

// GetChannels implements Reactor
func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  BlockChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  BlockSignatureChannel,
			Priority:            7,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  SyncChannel,
			Priority:            5,
			SendQueueCapacity:   20,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

// InitPeer implements Reactor
// mempool reactor依赖这里注册的PeerState判断peer的高度
func (conR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	peerState := NewPeerState(peer).SetLogger(conR.Logger)
	peer.Set(types.PeerStateKey, peerState)
	return peer
}

// AddPeer implements Reactor. 向新peer通告自己的链高度和每个区块
// 随带持久化的签名数，对方据此决定是否从我们这里追链
func (conR *Reactor) AddPeer(peer p2p.Peer) {
	if !conR.IsRunning() {
		return
	}

	state := conR.consensus.GetState()
	conR.trySendSync(peer, &SyncMessage{
		Type:       SyncCapabilities,
		Height:     state.Height,
		Signatures: conR.config.BlockSignaturesToProvide,
	})
}

// RemovePeer implements Reactor
func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {}

// Receive implements Reactor
// 区块和签名排进consensus的消化队列，sync请求就地应答
func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive", "src", src, "chId", chID)
		return
	}

	switch chID {
	case BlockChannel:
		block := &types.Block{}
		if err := tmjson.Unmarshal(msgBytes, block); err != nil {
			conR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
			conR.Switch.StopPeerForError(src, err)
			return
		}
		msg := &BlockMessage{Block: block}
		if err := msg.ValidateBasic(); err != nil {
			conR.Logger.Error("Peer sent us invalid block", "peer", src, "msg", msg, "err", err)
			return
		}
		// 区块本身就是peer高度的观测
		if ps, ok := src.Get(types.PeerStateKey).(*PeerState); ok {
			ps.SetHeight(block.Height)
		}
		conR.consensus.sendPeerMessage(msgInfo{msg, src.ID()})

	case BlockSignatureChannel:
		sig := &types.BlockSignature{}
		if err := tmjson.Unmarshal(msgBytes, sig); err != nil {
			conR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
			conR.Switch.StopPeerForError(src, err)
			return
		}
		msg := &BlockSignatureMessage{Signature: sig}
		if err := msg.ValidateBasic(); err != nil {
			conR.Logger.Error("Peer sent us invalid block signature", "peer", src, "msg", msg, "err", err)
			return
		}
		conR.consensus.sendPeerMessage(msgInfo{msg, src.ID()})

	case SyncChannel:
		msg := &SyncMessage{}
		if err := tmjson.Unmarshal(msgBytes, msg); err != nil {
			conR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
			conR.Switch.StopPeerForError(src, err)
			return
		}
		if err := msg.ValidateBasic(); err != nil {
			conR.Logger.Error("Peer sent us invalid sync message", "peer", src, "msg", msg, "err", err)
			return
		}
		conR.handleSyncMessage(msg, src)

	default:
		conR.Logger.Error(fmt.Sprintf("Unknown chId: %X", chID))
	}
}

//-----------------------------------------------------------------------------
// 广播

// subscribeToBroadcastEvents 在consensus的事件模型上注册广播动作
func (conR *Reactor) subscribeToBroadcastEvents() {
	evsw := conR.consensus.EventSwitch()

	// 自己锻造的区块：锻造前已经等过了broadcast delay，立即播出
	if err := evsw.AddListenerForEvent(subscriber, EventNewBlock,
		func(data events.EventData) {
			conR.broadcastBlock(data.(*types.Block), 0)
		}); err != nil {
		conR.Logger.Error("Error adding listener for events", "err", err)
	}

	// peer的区块转播一次，随机延迟打散风暴
	if err := evsw.AddListenerForEvent(subscriber, EventRelayBlock,
		func(data events.EventData) {
			conR.broadcastBlock(data.(*types.Block), conR.propagationJitter())
		}); err != nil {
		conR.Logger.Error("Error adding listener for events", "err", err)
	}

	// 本地委托人的签名按锻造节奏延迟播出，本地收集不受影响
	if err := evsw.AddListenerForEvent(subscriber, EventNewBlockSignature,
		func(data events.EventData) {
			conR.broadcastBlockSignature(data.(*types.BlockSignature), conR.config.ForgingSignatureBroadcastDelay)
		}); err != nil {
		conR.Logger.Error("Error adding listener for events", "err", err)
	}

	if err := evsw.AddListenerForEvent(subscriber, EventRelayBlockSignature,
		func(data events.EventData) {
			conR.broadcastBlockSignature(data.(*types.BlockSignature), conR.propagationJitter())
		}); err != nil {
		conR.Logger.Error("Error adding listener for events", "err", err)
	}
}

func (conR *Reactor) unsubscribeFromBroadcastEvents() {
	conR.consensus.EventSwitch().RemoveListener(subscriber)
}

func (conR *Reactor) broadcastBlock(block *types.Block, delay time.Duration) {
	if conR.config.PropagationMode == cfg.PropagationModeNone {
		return
	}
	bz, err := tmjson.Marshal(block)
	if err != nil {
		conR.Logger.Error("Failed to encode block", "block", block, "err", err)
		return
	}
	conR.sendAfter(delay, func() {
		conR.Switch.Broadcast(BlockChannel, bz)
	})
}

func (conR *Reactor) broadcastBlockSignature(sig *types.BlockSignature, delay time.Duration) {
	if conR.config.PropagationMode == cfg.PropagationModeNone {
		return
	}
	bz, err := tmjson.Marshal(sig)
	if err != nil {
		conR.Logger.Error("Failed to encode block signature", "sig", sig, "err", err)
		return
	}
	conR.sendAfter(delay, func() {
		conR.Switch.Broadcast(BlockSignatureChannel, bz)
	})
}

// sendAfter 延迟执行一次广播动作。事件监听器在consensus的
// goroutine里同步运行，延迟的部分必须挪到别的goroutine
func (conR *Reactor) sendAfter(delay time.Duration, send func()) {
	if delay <= 0 {
		send()
		return
	}
	go func() {
		select {
		case <-time.After(delay):
			send()
		case <-conR.Quit():
		}
	}()
}

func (conR *Reactor) propagationJitter() time.Duration {
	max := conR.config.PropagationRandomness
	if max <= 0 {
		return 0
	}
	return time.Duration(tmrand.Int63n(int64(max)))
}

//-----------------------------------------------------------------------------
// SyncChannel

func (conR *Reactor) handleSyncMessage(msg *SyncMessage, src p2p.Peer) {
	switch msg.Type {
	case SyncCapabilities:
		if ps, ok := src.Get(types.PeerStateKey).(*PeerState); ok {
			ps.SetCapabilities(msg.Height, msg.Signatures)
		}
	case SyncBlocksRequest:
		conR.serveBlocks(msg, src)
	case SyncHasBlockRequest:
		conR.serveHasBlock(msg, src)
	case SyncTransactionRequest:
		conR.serveTransaction(msg, src)
	case SyncBlocksResponse, SyncHasBlockResponse, SyncTransactionResponse:
		conR.deliverResponse(msg)
	default:
		conR.Logger.Error("Unknown sync message type", "type", msg.Type, "src", src)
	}
}

// serveBlocks 应答peer的区块拉取。limit同时受本地配置约束
func (conR *Reactor) serveBlocks(msg *SyncMessage, src p2p.Peer) {
	limit := msg.Limit
	if limit <= 0 || limit > conR.syncConfig.FetchBlockLimit {
		limit = conR.syncConfig.FetchBlockLimit
	}
	blocks, err := conR.store.GetSignedBlocksFromHeight(msg.FromHeight, limit)
	if err != nil {
		conR.Logger.Error("Failed to load blocks for peer", "fromHeight", msg.FromHeight, "err", err)
		blocks = nil
	}
	conR.trySendSync(src, &SyncMessage{
		Type:   SyncBlocksResponse,
		ReqID:  msg.ReqID,
		Blocks: blocks,
	})
}

func (conR *Reactor) serveHasBlock(msg *SyncMessage, src p2p.Peer) {
	has, err := conR.store.HasBlock(msg.BlockID)
	if err != nil {
		conR.Logger.Error("Failed to look up block", "block", msg.BlockID, "err", err)
		has = false
	}
	conR.trySendSync(src, &SyncMessage{
		Type:    SyncHasBlockResponse,
		ReqID:   msg.ReqID,
		BlockID: msg.BlockID,
		Has:     has,
	})
}

func (conR *Reactor) serveTransaction(msg *SyncMessage, src p2p.Peer) {
	tx, err := conR.mempool.GetSignedPendingTransaction(msg.TransactionID)
	if err != nil {
		conR.Logger.Debug("Peer asked for a pending transaction we don't hold",
			"tx", msg.TransactionID, "src", src)
		tx = nil
	}
	conR.trySendSync(src, &SyncMessage{
		Type:          SyncTransactionResponse,
		ReqID:         msg.ReqID,
		TransactionID: msg.TransactionID,
		Transaction:   tx,
	})
}

func (conR *Reactor) deliverResponse(msg *SyncMessage) {
	conR.mtx.Lock()
	ch, ok := conR.pending[msg.ReqID]
	conR.mtx.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (conR *Reactor) trySendSync(peer p2p.Peer, msg *SyncMessage) {
	bz, err := tmjson.Marshal(msg)
	if err != nil {
		conR.Logger.Error("Failed to encode sync message", "msg", msg, "err", err)
		return
	}
	peer.TrySend(SyncChannel, bz)
}

// request 向peer发出一个sync请求并同步等待按reqID配对的响应
func (conR *Reactor) request(peer p2p.Peer, msg *SyncMessage) (*SyncMessage, error) {
	conR.mtx.Lock()
	conR.nextReqID++
	reqID := conR.nextReqID
	ch := make(chan *SyncMessage, 1)
	conR.pending[reqID] = ch
	conR.mtx.Unlock()

	defer func() {
		conR.mtx.Lock()
		delete(conR.pending, reqID)
		conR.mtx.Unlock()
	}()

	msg.ReqID = reqID
	bz, err := tmjson.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if !peer.Send(SyncChannel, bz) {
		return nil, fmt.Errorf("could not send sync request to peer %v", peer.ID())
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-time.After(conR.config.PropagationTimeout):
		return nil, fmt.Errorf("sync request %d to peer %v timed out", reqID, peer.ID())
	case <-conR.Quit():
		return nil, errReactorStopped
	}
}

//-----------------------------------------------------------------------------
// PeerNetwork

// RequestBlocksFromHeight implements PeerNetwork
// 只向宣称随区块保有足够签名的peer拉取
func (conR *Reactor) RequestBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error) {
	peer := conR.pickSignaturePeer()
	if peer == nil {
		return nil, errNoSuitablePeer
	}
	reply, err := conR.request(peer, &SyncMessage{
		Type:       SyncBlocksRequest,
		FromHeight: fromHeight,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	if reply.Type != SyncBlocksResponse {
		return nil, fmt.Errorf("unexpected reply type %q from peer %v", reply.Type, peer.ID())
	}
	return reply.Blocks, nil
}

// SampleHasBlock implements PeerNetwork. 随机抽至多sample个peer
// 并发询问是否持有指定区块
func (conR *Reactor) SampleHasBlock(blockID string, sample int) (int, int) {
	all := conR.Switch.Peers().List()
	if len(all) == 0 || sample <= 0 {
		return 0, 0
	}
	peers := make([]p2p.Peer, len(all))
	copy(peers, all)
	for i := len(peers) - 1; i > 0; i-- {
		j := tmrand.Intn(i + 1)
		peers[i], peers[j] = peers[j], peers[i]
	}
	if len(peers) > sample {
		peers = peers[:sample]
	}

	var (
		wg        sync.WaitGroup
		confirmed int32
	)
	for _, peer := range peers {
		wg.Add(1)
		go func(peer p2p.Peer) {
			defer wg.Done()
			reply, err := conR.request(peer, &SyncMessage{
				Type:    SyncHasBlockRequest,
				BlockID: blockID,
			})
			if err == nil && reply.Type == SyncHasBlockResponse && reply.Has {
				atomic.AddInt32(&confirmed, 1)
			}
		}(peer)
	}
	wg.Wait()

	return int(atomic.LoadInt32(&confirmed)), len(peers)
}

// RequestPendingTransaction implements PeerNetwork. 随机问一个peer，
// caller自己决定重试多少次
func (conR *Reactor) RequestPendingTransaction(id string) (*types.Transaction, error) {
	all := conR.Switch.Peers().List()
	if len(all) == 0 {
		return nil, errNoSuitablePeer
	}
	peer := all[tmrand.Intn(len(all))]
	reply, err := conR.request(peer, &SyncMessage{
		Type:          SyncTransactionRequest,
		TransactionID: id,
	})
	if err != nil {
		return nil, err
	}
	if reply.Transaction == nil {
		return nil, fmt.Errorf("peer %v does not hold pending transaction %v", peer.ID(), id)
	}
	return reply.Transaction, nil
}

// pickSignaturePeer 在宣称签名数不低于blockSignaturesToFetch的
// peer中随机挑一个
func (conR *Reactor) pickSignaturePeer() p2p.Peer {
	var candidates []p2p.Peer
	for _, peer := range conR.Switch.Peers().List() {
		ps, ok := peer.Get(types.PeerStateKey).(*PeerState)
		if !ok {
			continue
		}
		if ps.Signatures() >= conR.config.BlockSignaturesToFetch {
			candidates = append(candidates, peer)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[tmrand.Intn(len(candidates))]
}

//-----------------------------------------------------------------------------

// PeerState 对一个peer的观测，挂在peer data里。
// mempool reactor读它的高度决定交易对peer的可见窗口
type PeerState struct {
	peer   p2p.Peer
	logger log.Logger

	mtx        tmsync.RWMutex
	height     uint64
	signatures int
}

// NewPeerState returns a new PeerState for the given peer.
func NewPeerState(peer p2p.Peer) *PeerState {
	return &PeerState{
		peer:   peer,
		logger: log.NewNopLogger(),
	}
}

// SetLogger allows to set a logger on the peer state. Returns the peer state
// for convenience.
func (ps *PeerState) SetLogger(logger log.Logger) *PeerState {
	ps.logger = logger
	return ps
}

// GetHeight returns the height the peer is known to have reached.
func (ps *PeerState) GetHeight() uint64 {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	return ps.height
}

// SetHeight 记录peer达到的高度，只增不减
func (ps *PeerState) SetHeight(height uint64) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if height > ps.height {
		ps.height = height
	}
}

// SetCapabilities 记录peer通告的链高度和随区块保有的签名数
func (ps *PeerState) SetCapabilities(height uint64, signatures int) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()
	if height > ps.height {
		ps.height = height
	}
	ps.signatures = signatures
}

// Signatures returns the number of signatures the peer keeps with each block
// it serves.
func (ps *PeerState) Signatures() int {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	return ps.signatures
}

func (ps *PeerState) String() string {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	return fmt.Sprintf("PeerState{height=%d signatures=%d}", ps.height, ps.signatures)
}

//-----------------------------------------------------------------------------
// Messages

// Message is a message that can be sent and received on the Reactor
type Message interface {
	ValidateBasic() error
}

//-------------------------------------

// BlockMessage is sent when a delegate forges the block of the slot
type BlockMessage struct {
	Block *types.Block
}

// ValidateBasic performs basic validation.
func (m *BlockMessage) ValidateBasic() error {
	if m.Block == nil {
		return errors.New("missing block")
	}
	return m.Block.ValidateBasic()
}

// String returns a string representation.
func (m *BlockMessage) String() string {
	return fmt.Sprintf("[Block %v]", m.Block)
}

//-------------------------------------

// BlockSignatureMessage is sent when an active delegate countersigns the
// candidate block of the slot
type BlockSignatureMessage struct {
	Signature *types.BlockSignature
}

// ValidateBasic performs basic validation.
func (m *BlockSignatureMessage) ValidateBasic() error {
	if m.Signature == nil {
		return errors.New("missing block signature")
	}
	return m.Signature.ValidateBasic()
}

// String returns a string representation.
func (m *BlockSignatureMessage) String() string {
	return fmt.Sprintf("[BlockSignature %v@%v]", m.Signature.SignerAddress, m.Signature.BlockID)
}

//-------------------------------------

// sync消息类型
const (
	SyncCapabilities        = "capabilities"
	SyncBlocksRequest       = "blocksRequest"
	SyncBlocksResponse      = "blocksResponse"
	SyncHasBlockRequest     = "hasBlockRequest"
	SyncHasBlockResponse    = "hasBlockResponse"
	SyncTransactionRequest  = "transactionRequest"
	SyncTransactionResponse = "transactionResponse"
)

// SyncMessage 承载SyncChannel上的请求和响应，Type决定哪些字段有效
type SyncMessage struct {
	Type  string `json:"type"`
	ReqID uint64 `json:"reqId,omitempty"`

	// 请求侧
	FromHeight    uint64 `json:"fromHeight,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	BlockID       string `json:"blockId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`

	// 响应侧
	Blocks      []*types.Block     `json:"blocks,omitempty"`
	Transaction *types.Transaction `json:"transaction,omitempty"`
	Has         bool               `json:"has,omitempty"`

	// capabilities通告
	Height     uint64 `json:"height,omitempty"`
	Signatures int    `json:"signatures,omitempty"`
}

// ValidateBasic performs basic validation.
func (m *SyncMessage) ValidateBasic() error {
	switch m.Type {
	case SyncCapabilities, SyncBlocksRequest, SyncBlocksResponse,
		SyncHasBlockRequest, SyncHasBlockResponse,
		SyncTransactionRequest, SyncTransactionResponse:
		return nil
	default:
		return fmt.Errorf("unknown sync message type %q", m.Type)
	}
}

// String returns a string representation.
func (m *SyncMessage) String() string {
	return fmt.Sprintf("[Sync %v req=%d]", m.Type, m.ReqID)
}
