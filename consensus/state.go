package consensus

import (
	"context"
	"errors"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmsync "github.com/tendermint/tendermint/libs/sync"
	"github.com/tendermint/tendermint/p2p"

	cfg "ldpos_chain/config"
	cstype "ldpos_chain/consensus/types"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/mempool"
	"ldpos_chain/slot"
	"ldpos_chain/state"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const (
	msgQueueSize = 1000
)

// PeerNetwork 是consensus在gossip之外主动触达peer的出口，
// 由reactor实现。没有网络（单节点、测试）时注入nil即可
type PeerNetwork interface {
	// RequestBlocksFromHeight 向一个宣称保有足够签名的peer拉取
	// 从fromHeight起至多limit个带签名的区块
	RequestBlocksFromHeight(fromHeight uint64, limit int) ([]*types.Block, error)

	// SampleHasBlock 抽样询问至多sample个peer是否持有指定区块
	SampleHasBlock(blockID string, sample int) (confirmed, sampled int)

	// RequestPendingTransaction 向peer索取完整签名形式的pending交易
	RequestPendingTransaction(id string) (*types.Transaction, error)
}

// 锻造循环的状态机实现。
// 每个slot由轮转到的委托人锻造一个区块，其余活跃委托人对它
// countersign，签名达到法定数后由区块执行器提交
type ConsensusState struct {
	service.BaseService

	config     *cfg.ConsensusConfig
	syncConfig *cfg.SyncConfig

	// 区块执行器
	blockExec state.BlockExecutor

	// 账本持久化
	blockStore store.Store

	// pending交易来源
	mempool mempool.Mempool

	// slot时钟
	clock slot.Clock

	// 本节点经营的锻造钱包
	forgers []cryptoclient.Client

	// 共识内部状态
	mtx tmsync.Mutex
	cstype.RoundState
	state state.State // 最后一个区块提交后的链状态

	// 通信管道
	peerMsgQueue chan msgInfo       // 来自reactor的区块和签名
	eventSwitch  events.EventSwitch // consensus和reactor之间通信的组件 - 事件模型

	// 本slot admit的候选区块和签名进度流向锻造循环的管道
	blockStream chan *types.Block
	sigProgress chan struct{}

	network PeerNetwork
	syncer  *Syncer

	// 首次完成catch up后置位并发布bootstrap事件
	bootstrapped bool

	loopCancel context.CancelFunc

	metric *consensusMetric

	// 方便测试重写锻造逻辑
	decideProposal func(forger cryptoclient.Client, timestamp int64) (*types.Block, error)
}

type ConsensusOption func(*ConsensusState)

// WithForgers 注册本节点经营的锻造钱包，多个本地委托人可以同时在线
func WithForgers(clients ...cryptoclient.Client) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.forgers = append(cs.forgers, clients...)
	}
}

func NewConsensusState(
	config *cfg.ConsensusConfig,
	syncConfig *cfg.SyncConfig,
	blockExec state.BlockExecutor,
	blockStore store.Store,
	mempool mempool.Mempool,
	clock slot.Clock,
	state state.State,
	options ...ConsensusOption,
) *ConsensusState {
	cs := &ConsensusState{
		config:       config,
		syncConfig:   syncConfig,
		blockExec:    blockExec,
		blockStore:   blockStore,
		mempool:      mempool,
		clock:        clock,
		state:        state,
		peerMsgQueue: make(chan msgInfo, msgQueueSize),
		eventSwitch:  events.NewEventSwitch(),
		blockStream:  make(chan *types.Block, 1),
		sigProgress:  make(chan struct{}, 1),
		metric:       newConsensusMetric(),
	}
	cs.decideProposal = cs.defaultProposal

	cs.BaseService = *service.NewBaseService(nil, "Consensus", cs)

	for _, opt := range options {
		opt(cs)
	}

	return cs
}

func (cs *ConsensusState) String() string {
	return cs.BaseService.String()
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.Logger = logger
	if cs.syncer != nil {
		cs.syncer.SetLogger(logger)
	}
}

// SetPeerNetwork 注入peer网络。追链引擎只有在注入后才可用
func (cs *ConsensusState) SetPeerNetwork(network PeerNetwork) {
	cs.network = network
	cs.syncer = NewSyncer(cs.syncConfig, cs.blockExec, network, cs.clock)
	cs.syncer.SetLogger(cs.Logger)
}

// EventSwitch 暴露consensus的事件模型。reactor在其上监听广播类
// 事件，bootstrap和chainChanges等模块事件也从这里发布
func (cs *ConsensusState) EventSwitch() events.EventSwitch {
	return cs.eventSwitch
}

// Metric 返回锻造循环的运行指标
func (cs *ConsensusState) Metric() *consensusMetric {
	return cs.metric
}

// GetState returns a copy of the chain state after the last processed block.
func (cs *ConsensusState) GetState() state.State {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.state.Copy()
}

// GetRoundState returns a shallow copy of the in-slot state.
func (cs *ConsensusState) GetRoundState() *cstype.RoundState {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	rs := cs.RoundState
	return &rs
}

func (cs *ConsensusState) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs.loopCancel = cancel

	go cs.receiveRoutine()
	go cs.forgeRoutine(ctx)

	cs.Logger.Info("Forging loop started", "localDelegates", len(cs.forgers))
	return nil
}

func (cs *ConsensusState) OnStop() {
	if cs.loopCancel != nil {
		cs.loopCancel()
	}
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("Failed to stop event switch", "err", err)
	}
}

// receiveRoutine 串行消化reactor递来的区块和签名。
// 处理结果通过blockStream和sigProgress反馈给锻造循环，
// 本routine从不触碰区块执行器的提交路径
func (cs *ConsensusState) receiveRoutine() {
	for {
		select {
		case <-cs.Quit():
			return
		case mi := <-cs.peerMsgQueue:
			cs.handleMsg(mi)
		}
	}
}

// forgeRoutine 驱动锻造主循环：每个slot依次经过
// CatchUp -> WaitSlot -> Forge -> CollectSigs -> Process。
// 任何一步落空只结束本slot，循环继续
func (cs *ConsensusState) forgeRoutine(ctx context.Context) {
	for {
		select {
		case <-cs.Quit():
			return
		default:
		}

		cs.catchUpStep(ctx)

		slot, ok := cs.waitSlotStep(ctx)
		if !ok {
			return
		}

		block := cs.forgeOrReceiveStep(ctx, slot)
		if block == nil {
			continue
		}

		if !cs.collectSignaturesStep(ctx, block) {
			continue
		}

		cs.processStep(block)
	}
}

// catchUpStep 在进入下一个slot前补齐本地缺失的区块，完成后按需
// 用链上账户快进本地forging密钥序号，并在首次完成时发布bootstrap事件
func (cs *ConsensusState) catchUpStep(ctx context.Context) {
	cs.updateStep(cstype.RoundStepCatchUp)

	if cs.syncer != nil {
		cs.mtx.Lock()
		chainState := cs.state
		cs.mtx.Unlock()

		newState, added, err := cs.syncer.CatchUp(ctx, chainState)
		if err != nil {
			cs.Logger.Error("Catch up aborted", "height", newState.Height, "added", added, "err", err)
		}
		if added > 0 {
			cs.mtx.Lock()
			cs.state = newState
			cs.mtx.Unlock()
			cs.metric.MarkChainTip(newState.Height, newState.LastBlockID)
			cs.Logger.Info("Caught up with network", "height", newState.Height, "added", added)
		}
		if cs.config.AutoSyncForgingKeyIndex {
			cs.syncForgingKeyIndexes()
		}
	}

	if !cs.bootstrapped {
		cs.bootstrapped = true
		cs.metric.MarkBootstrapped()
		cs.mtx.Lock()
		height := cs.state.Height
		cs.mtx.Unlock()
		cs.eventSwitch.FireEvent(types.EventBootstrap, height)
	}
}

// 链上账户的nextForgingKeyIndex可能领先本地记录（例如换机重启），
// 自动快进避免签出立刻会被拒绝的区块
func (cs *ConsensusState) syncForgingKeyIndexes() {
	for _, client := range cs.forgers {
		account, err := cs.blockStore.GetAccount(client.Address())
		if err != nil {
			continue
		}
		advanced, err := client.SyncKeyIndex(cryptoclient.KeyChainForging, account)
		if err != nil {
			cs.Logger.Error("Failed to sync forging key index", "delegate", client.Address(), "err", err)
			continue
		}
		if advanced {
			cs.Logger.Info("Fast forwarded forging key index",
				"delegate", client.Address(), "keyIndex", client.ForgingKeyIndex())
		}
	}
}

// waitSlotStep 睡到下一个尚未处理过区块的slot边界
func (cs *ConsensusState) waitSlotStep(ctx context.Context) (int64, bool) {
	cs.updateStep(cstype.RoundStepWaitSlot)

	next := cs.clock.CurrentSlot() + 1
	cs.mtx.Lock()
	if tipSlot := cs.clock.SlotOf(cs.state.LastBlockTimestamp); tipSlot >= next {
		next = tipSlot + 1
	}
	cs.mtx.Unlock()

	if !cs.clock.WaitForSlot(ctx, next) {
		return 0, false
	}
	cs.enterSlot(next)
	return next, true
}

// enterSlot 重置每slot状态并排定本slot的锻造者
func (cs *ConsensusState) enterSlot(slot int64) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	cs.Slot = slot
	cs.StartTime = time.Now()
	cs.Step = cstype.RoundStepForge
	cs.Forger = cs.state.Delegates.GetForger(slot)
	cs.ActiveBlock = nil
	cs.Signatures = nil
	cs.DelegateChangedKeys = false

	// 清掉上一个slot遗留的stream内容
drain:
	for {
		select {
		case <-cs.blockStream:
		case <-cs.sigProgress:
		default:
			break drain
		}
	}

	forgerAddress := ""
	if cs.Forger != nil {
		forgerAddress = cs.Forger.Address
	}
	cs.metric.MarkSlot(slot, cs.StartTime, forgerAddress, cs.forgingClient(forgerAddress) != nil)
	cs.metric.MarkStep(cstype.RoundStepForge.String())
	cs.Logger.Debug("Entering new slot", "slot", slot, "forger", forgerAddress)
}

// forgeOrReceiveStep 锻造本slot的区块，或者等待锻造者的区块到达。
// 窗口内没有等到合法区块返回nil，本slot被跳过
func (cs *ConsensusState) forgeOrReceiveStep(ctx context.Context, slot int64) *types.Block {
	timestamp := cs.clock.StartOf(slot)
	window := cs.config.ForgingBlockBroadcastDelay + cs.config.PropagationTimeout

	cs.mtx.Lock()
	forger := cs.Forger
	cs.mtx.Unlock()
	if forger == nil {
		cs.Logger.Error("No delegate is scheduled for the slot", "slot", slot)
		return nil
	}

	if client := cs.forgingClient(forger.Address); client != nil {
		// 本地是本slot的锻造者：延迟一段时间再锻造并广播，
		// 让慢节点先完成slot切换
		if !cs.clock.Sleep(ctx, cs.config.ForgingBlockBroadcastDelay) {
			return nil
		}
		block, err := cs.decideProposal(client, timestamp)
		if err != nil {
			cs.Logger.Error("Failed to forge block", "slot", slot, "err", err)
		} else {
			// 自己的区块与peer的区块走同一条verify+admit管道
			cs.handleMsg(msgInfo{&BlockMessage{Block: block}, ""})
		}
	}

	block := cs.awaitBlock(ctx, window)
	if block == nil {
		cs.Logger.Info("No valid block arrived within the slot", "slot", slot, "forger", forger.Address)
		cs.metric.MarkSkippedSlot()
		return nil
	}
	return block
}

// defaultProposal 默认的锻造逻辑：让区块执行器从mempool打包
func (cs *ConsensusState) defaultProposal(forger cryptoclient.Client, timestamp int64) (*types.Block, error) {
	cs.mtx.Lock()
	chainState := cs.state
	cs.mtx.Unlock()
	return cs.blockExec.CreateProposal(chainState, forger, timestamp)
}

func (cs *ConsensusState) forgingClient(address string) cryptoclient.Client {
	for _, client := range cs.forgers {
		if client.Address() == address {
			return client
		}
	}
	return nil
}

// collectSignaturesStep 让本地委托人签名候选区块，然后等待法定数量
// 的签名到齐。窗口内不够数返回false，本slot的区块不会被提交
func (cs *ConsensusState) collectSignaturesStep(ctx context.Context, block *types.Block) bool {
	cs.updateStep(cstype.RoundStepCollectSigs)

	cs.signBlockAsLocalDelegates(block)

	cs.mtx.Lock()
	quorum := cs.state.Delegates.SignatureQuorum(cs.config.MinForgerBlockSignatureRatio)
	cs.mtx.Unlock()

	window := cs.config.ForgingSignatureBroadcastDelay + cs.config.PropagationTimeout
	if cs.awaitSignatures(ctx, window, quorum) {
		return true
	}

	cs.Logger.Info("Not enough block signatures arrived in time",
		"block", block.ID, "collected", cs.signatureCount(), "quorum", quorum)
	cs.metric.MarkSkippedSlot()
	return false
}

// 本地经营的每一个活跃委托人（锻造者除外）为候选区块产出签名包。
// 签名走和peer签名一致的verify+收集管道，再由reactor延迟广播
func (cs *ConsensusState) signBlockAsLocalDelegates(block *types.Block) {
	cs.mtx.Lock()
	refuse := cs.LastDoubleForgedTimestamp == block.Timestamp
	delegates := cs.state.Delegates
	cs.mtx.Unlock()

	if refuse {
		cs.Logger.Info("Refusing to sign a block for a double forged timestamp", "timestamp", block.Timestamp)
		return
	}

	for _, client := range cs.forgers {
		if client.Address() == block.ForgerAddress {
			continue
		}
		if !delegates.HasAddress(client.Address()) {
			continue
		}
		sig, err := client.SignBlock(block)
		if err != nil {
			cs.Logger.Error("Failed to sign block", "delegate", client.Address(), "err", err)
			continue
		}
		cs.handleMsg(msgInfo{&BlockSignatureMessage{Signature: sig}, ""})
	}
}

// processStep 提交候选区块。交易太少且锻造者未轮换密钥的区块不上
// 链，只向外通告一个skipBlock
func (cs *ConsensusState) processStep(block *types.Block) {
	cs.updateStep(cstype.RoundStepProcess)

	cs.mtx.Lock()
	if len(block.Transactions) < cs.config.MinTransactionsPerBlock && !cs.DelegateChangedKeys {
		cs.mtx.Unlock()
		cs.Logger.Info("Skipping block with too few transactions",
			"block", block.ID, "txs", len(block.Transactions))
		cs.metric.MarkSkippedSlot()
		cs.eventSwitch.FireEvent(types.EventChainChanges, &types.EventDataChainChanges{
			Type:  types.ChainChangeSkipBlock,
			Block: block.Simplify(),
		})
		return
	}

	sealed := *block
	sealed.Signatures = cs.Signatures.Signatures()

	newState, err := cs.blockExec.ApplyBlock(cs.state, &sealed, false)
	if err != nil {
		cs.mtx.Unlock()
		cs.Logger.Error("Failed to process block", "block", block.ID, "err", err)
		return
	}
	cs.state = newState
	height, blockID := newState.Height, newState.LastBlockID
	cs.mtx.Unlock()

	cs.metric.MarkChainTip(height, blockID)
}

//-----------------------------------------------------------------------------
// 消息处理

// handleMsg 消化一条区块或签名消息。peer消息由receiveRoutine递入，
// 本地锻造的区块和本地委托人的签名由锻造循环直接递入（PeerID为空）
func (cs *ConsensusState) handleMsg(mi msgInfo) {
	msg, peerID := mi.Msg, mi.PeerID

	switch msg := msg.(type) {
	case *BlockMessage:
		cs.handleBlock(msg.Block, peerID)
	case *BlockSignatureMessage:
		cs.handleBlockSignature(msg.Signature, peerID)
	default:
		cs.Logger.Error("Unknown message type", "msg", msg)
	}
}

// handleBlock admit本slot的候选区块：完整验证、double forge防御、
// 补齐引用的pending交易并核对签名hash，最后发布到区块stream并转发
func (cs *ConsensusState) handleBlock(block *types.Block, peerID p2p.ID) {
	own := peerID == ""

	cs.mtx.Lock()
	chainState := cs.state
	slotTimestamp := cs.clock.StartOf(cs.Slot)
	cs.mtx.Unlock()

	if block.Timestamp != slotTimestamp {
		cs.Logger.Debug("Ignoring block outside the current slot",
			"block", block, "slotTimestamp", slotTimestamp)
		return
	}

	changed, err := cs.blockExec.VerifyBlock(chainState, block)
	if err != nil {
		if own {
			cs.Logger.Error("Own forged block failed verification", "block", block, "err", err)
		} else {
			cs.Logger.Info("Rejected block", "block", block, "src", peerID, "err", err)
		}
		return
	}

	// double forge和重复区块尽早丢弃，不为它们拉取交易
	if admitted, relayDouble := cs.precheckBlock(block); !admitted {
		if relayDouble {
			cs.relayDoubleForged(block)
		}
		return
	}

	// gossip区块内的交易为简化形式，本地必须持有每一笔的完整签名
	if !cs.ensurePendingTransactions(block) {
		return
	}

	admitted, relayDouble := cs.admitBlock(block, changed)
	if relayDouble {
		cs.relayDoubleForged(block)
		return
	}
	if !admitted {
		return
	}

	cs.Logger.Info("Admitted block for slot", "block", block, "src", peerID)
	if own {
		cs.eventSwitch.FireEvent(EventNewBlock, block)
	} else {
		cs.eventSwitch.FireEvent(EventRelayBlock, block)
	}
}

// precheckBlock 在锁内判断block是否还有admit的余地。
// 返回(false, true)表示遇到了需要转发一次的double forge区块
func (cs *ConsensusState) precheckBlock(block *types.Block) (admittable, relayDouble bool) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	active := cs.ActiveBlock
	if active == nil {
		return true, false
	}
	if block.ID == active.ID {
		return false, false
	}

	// 同一slot时间戳的第二个不同区块：保留先到的，新来的只转发一次，
	// 此后本地委托人不再为该时间戳签名
	relayDouble = cs.LastDoubleForgedTimestamp != block.Timestamp
	cs.LastDoubleForgedTimestamp = block.Timestamp
	cs.metric.MarkDoubleForged(block.Timestamp)
	return false, relayDouble
}

// admitBlock 把block设为本slot的候选区块并写入区块stream。
// 拉取交易期间slot可能已经切换或者有别的区块先admit，需要复查
func (cs *ConsensusState) admitBlock(block *types.Block, changed bool) (admitted, relayDouble bool) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if cs.clock.StartOf(cs.Slot) != block.Timestamp {
		return false, false
	}
	if active := cs.ActiveBlock; active != nil {
		if block.ID == active.ID {
			return false, false
		}
		relayDouble = cs.LastDoubleForgedTimestamp != block.Timestamp
		cs.LastDoubleForgedTimestamp = block.Timestamp
		cs.metric.MarkDoubleForged(block.Timestamp)
		return false, relayDouble
	}

	cs.ActiveBlock = block
	cs.Signatures = cstype.NewBlockSignatureSet(block.ID)
	cs.DelegateChangedKeys = changed

	select {
	case cs.blockStream <- block:
	default:
	}
	return true, false
}

func (cs *ConsensusState) relayDoubleForged(block *types.Block) {
	cs.Logger.Error("Double forged block detected",
		"timestamp", block.Timestamp, "received", block.ID)
	cs.eventSwitch.FireEvent(EventRelayBlock, block)
}

// ensurePendingTransactions 确认区块引用的每一笔交易都在mempool中
// 有完整签名形式。缺失的向peer索取并走完整认证，然后核对区块内的
// 签名hash确实指向本地持有的签名
func (cs *ConsensusState) ensurePendingTransactions(block *types.Block) bool {
	for i := range block.Transactions {
		tx := block.Transactions[i]
		full, err := cs.mempool.GetSignedPendingTransaction(tx.ID)
		if err != nil {
			full = cs.fetchPendingTransaction(tx.ID)
			if full == nil {
				cs.Logger.Info("Could not obtain pending transaction referenced by block",
					"tx", tx.ID, "block", block.ID)
				return false
			}
			if err := cs.mempool.AddTransaction(full, mempool.TxInfo{SenderID: mempool.UnknownPeerID}); err != nil &&
				!errors.Is(err, mempool.ErrTxInCache) && !errors.Is(err, mempool.ErrTxPending) {
				cs.Logger.Info("Fetched pending transaction was rejected",
					"tx", tx.ID, "err", err)
				return false
			}
		}
		if !signatureHashesMatch(tx, full) {
			cs.Logger.Error("Block references a transaction with a foreign signature hash",
				"tx", tx.ID, "block", block.ID)
			return false
		}
	}
	return true
}

// fetchPendingTransaction 向peer索取完整形式的pending交易，
// 连续失败达到上限放弃
func (cs *ConsensusState) fetchPendingTransaction(id string) *types.Transaction {
	if cs.network == nil {
		return nil
	}
	for attempt := 0; attempt < cs.syncConfig.MaxConsecutiveTransactionFetchFailures; attempt++ {
		tx, err := cs.network.RequestPendingTransaction(id)
		if err != nil {
			cs.Logger.Debug("Pending transaction fetch failed",
				"tx", id, "attempt", attempt+1, "err", err)
			continue
		}
		if tx != nil && tx.ID == id {
			return tx
		}
	}
	return nil
}

// 区块内的简化交易以签名hash指代真实签名，必须和本地持有的完整
// 形式对得上；多签交易逐成员核对
func signatureHashesMatch(simplified, full *types.Transaction) bool {
	if full == nil {
		return false
	}
	if simplified.SenderSignatureHash != "" &&
		simplified.SenderSignatureHash != types.SignatureHash(full.SenderSignature) {
		return false
	}
	if len(simplified.Signatures) > 0 {
		fullPackets := make(map[string]tmbytes.HexBytes, len(full.Signatures))
		for _, packet := range full.Signatures {
			fullPackets[packet.SignerAddress] = packet.Signature
		}
		for _, packet := range simplified.Signatures {
			fullSig, ok := fullPackets[packet.SignerAddress]
			if !ok || packet.SignatureHash != types.SignatureHash(fullSig) {
				return false
			}
		}
	}
	return true
}

// handleBlockSignature 收集对候选区块的委托人签名：验证、按签名者
// 地址去重、写入签名集合并转发
func (cs *ConsensusState) handleBlockSignature(sig *types.BlockSignature, peerID p2p.ID) {
	own := peerID == ""

	cs.mtx.Lock()
	chainState := cs.state
	active := cs.ActiveBlock
	cs.mtx.Unlock()

	if active == nil || sig.BlockID != active.ID {
		cs.Logger.Debug("Ignoring signature without a matching candidate block", "sig", sig)
		return
	}

	if err := cs.blockExec.VerifyBlockSignature(chainState, active, sig); err != nil {
		cs.Logger.Info("Rejected block signature", "sig", sig, "src", peerID, "err", err)
		return
	}

	cs.mtx.Lock()
	if cs.ActiveBlock == nil || cs.ActiveBlock.ID != sig.BlockID {
		cs.mtx.Unlock()
		return
	}
	err := cs.Signatures.Add(*sig)
	size := cs.Signatures.Size()
	cs.mtx.Unlock()

	if err != nil {
		if !errors.Is(err, cstype.ErrDuplicateSignature) {
			cs.Logger.Info("Discarded block signature", "sig", sig, "err", err)
		}
		return
	}
	cs.metric.MarkSignatureCount(size)

	select {
	case cs.sigProgress <- struct{}{}:
	default:
	}

	if own {
		cs.eventSwitch.FireEvent(EventNewBlockSignature, sig)
	} else {
		cs.eventSwitch.FireEvent(EventRelayBlockSignature, sig)
	}
}

// sendPeerMessage 把来自peer的消息排入消化队列
func (cs *ConsensusState) sendPeerMessage(mi msgInfo) {
	select {
	case cs.peerMsgQueue <- mi:
	case <-cs.Quit():
	}
}

//-----------------------------------------------------------------------------
// 带窗口的等待

// awaitBlock 等待本slot的候选区块或窗口耗尽
func (cs *ConsensusState) awaitBlock(ctx context.Context, window time.Duration) *types.Block {
	// 锻造者自己的区块走同步管道，可能已经在stream里了
	select {
	case block := <-cs.blockStream:
		return block
	default:
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timeout := cs.windowTimer(wctx, window)

	select {
	case block := <-cs.blockStream:
		return block
	case <-timeout:
		return nil
	case <-cs.Quit():
		return nil
	}
}

// awaitSignatures 等待签名集合长到quorum或窗口耗尽
func (cs *ConsensusState) awaitSignatures(ctx context.Context, window time.Duration, quorum int) bool {
	if cs.signatureCount() >= quorum {
		return true
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timeout := cs.windowTimer(wctx, window)

	for {
		select {
		case <-cs.sigProgress:
			if cs.signatureCount() >= quorum {
				return true
			}
		case <-timeout:
			return cs.signatureCount() >= quorum
		case <-cs.Quit():
			return false
		}
	}
}

// windowTimer 在slot时钟上铺一段窗口，窗口走完或ctx取消时关闭
// 返回的channel
func (cs *ConsensusState) windowTimer(ctx context.Context, window time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		cs.clock.Sleep(ctx, window)
		close(done)
	}()
	return done
}

func (cs *ConsensusState) signatureCount() int {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.Signatures.Size()
}

func (cs *ConsensusState) updateStep(step cstype.RoundStepType) {
	cs.mtx.Lock()
	cs.Step = step
	cs.mtx.Unlock()
	cs.metric.MarkStep(step.String())
}

// ----- MsgInfo -----
// 与reactor之间通信的消息格式
type msgInfo struct {
	Msg    Message
	PeerID p2p.ID
}
