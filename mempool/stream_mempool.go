package mempool

import (
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/events"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	tmsync "github.com/tendermint/tendermint/libs/sync"

	"ldpos_chain/auth"
	cfg "ldpos_chain/config"
	"ldpos_chain/libs/utils"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

// NewStreamMempool 构造一个per-sender stream的mempool。
// height为当前链尾高度
func NewStreamMempool(
	config *cfg.MempoolConfig,
	rules *cfg.TransactionConfig,
	networkSymbol string,
	st store.Store,
	height uint64,
	options ...StreamMempoolOption,
) *StreamMempool {
	cache, err := lru.New(config.CacheSize)
	if err != nil {
		panic(err)
	}
	mem := &StreamMempool{
		config:        config,
		rules:         rules,
		auth:          auth.NewAuthenticator(networkSymbol, rules),
		store:         st,
		height:        height,
		streams:       make(map[string]*senderStream),
		memberWindows: make(map[string]*keyWindow),
		packetCounts:  make(map[string]int),
		txs:           clist.New(),
		cache:         cache,
		metric:        newMemMetric(),
		logger:        log.NewNopLogger(),
		nowFn: func() int64 {
			return time.Now().UnixNano() / int64(time.Millisecond)
		},
	}
	for _, option := range options {
		option(mem)
	}
	return mem
}

// StreamMempool 按发送者地址划分stream：同一发送者的授权检查
// 被stream的锁串行化，不同发送者并发。每个stream持有一份账户
// 快照，余额随已接受的pending交易逐笔扣减，后续交易对着扣减后
// 的余额做检查
type StreamMempool struct {
	height   uint64 // the last block Update()'d to
	txsBytes int64  // total encoded size of pending transactions

	config *cfg.MempoolConfig
	rules  *cfg.TransactionConfig
	auth   *auth.Authenticator
	store  store.Store

	// updateMtx的写锁由Update（经caller的Lock）、ExpirePending和
	// Flush持有，读锁覆盖每一次admission的全程
	updateMtx tmsync.RWMutex

	streamsMtx tmsync.Mutex
	streams    map[string]*senderStream

	// multisig成员的排序窗口是全局的：同一成员可能给多个钱包的
	// 交易签名，密钥链却只有一条
	windowsMtx    tmsync.Mutex
	memberWindows map[string]*keyWindow
	packetCounts  map[string]int

	txs    *clist.CList // 广播顺序，reactor按它遍历
	txsMap sync.Map     // tx id -> *clist.CElement

	// Keep a cache of already-seen txs: committed, expired or evicted
	// entries short-circuit stale gossip.
	cache *lru.Cache

	notifyMtx            tmsync.Mutex
	txsAvailable         chan struct{} // fires once for each height, when the mempool is not empty
	notifiedTxsAvailable bool

	evsw   events.EventSwitch
	metric *memMetric
	logger log.Logger

	// 再传播前的随机延迟上限，打散全网的广播风暴
	propagationJitter time.Duration

	nowFn func() int64
}

var _ Mempool = (*StreamMempool)(nil)

type StreamMempoolOption func(*StreamMempool)

// WithNow 注入毫秒时间源，测试用
func WithNow(now func() int64) StreamMempoolOption {
	return func(mem *StreamMempool) { mem.nowFn = now }
}

// WithPropagationJitter 每笔交易admission时抽一个[0, max)的延迟，
// 到时后reactor才开始向peer转播
func WithPropagationJitter(max time.Duration) StreamMempoolOption {
	return func(mem *StreamMempool) { mem.propagationJitter = max }
}

func (mem *StreamMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// SetEventSwitch 接受新交易后在其上发布transaction事件
func (mem *StreamMempool) SetEventSwitch(evsw events.EventSwitch) {
	mem.evsw = evsw
}

// Metric 返回mempool的运行指标
func (mem *StreamMempool) Metric() *memMetric {
	return mem.metric
}

func (mem *StreamMempool) Lock() {
	mem.updateMtx.Lock()
}

func (mem *StreamMempool) Unlock() {
	mem.updateMtx.Unlock()
}

func (mem *StreamMempool) Size() int {
	return mem.txs.Len()
}

func (mem *StreamMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// EnableTxsAvailable initializes the TxsAvailable channel, ensuring it will
// trigger once every height when transactions are available.
func (mem *StreamMempool) EnableTxsAvailable() {
	mem.txsAvailable = make(chan struct{}, 1)
}

func (mem *StreamMempool) TxsAvailable() <-chan struct{} {
	return mem.txsAvailable
}

// AddTransaction 完整认证一笔新交易并加入发送者的stream。
// 检查依次为：重复、stream容量与背压、注册类交易的独占规则、
// 投票集约束、认证（schema、手续费、签名、余额）、密钥序号窗口
func (mem *StreamMempool) AddTransaction(tx *types.Transaction, txInfo TxInfo) error {
	if err := mem.addTransaction(tx, txInfo); err != nil {
		mem.metric.MarkRejected()
		return err
	}
	mem.metric.MarkAccepted()
	return nil
}

func (mem *StreamMempool) addTransaction(tx *types.Transaction, txInfo TxInfo) error {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if tx == nil || tx.ID == "" {
		return types.NewInvalidTransactionError("", "transaction has no id")
	}
	if e, ok := mem.txsMap.Load(tx.ID); ok {
		// 记下来源，广播时不用原路送回
		e.(*clist.CElement).Value.(*mempoolTx).senders.Store(txInfo.SenderID, struct{}{})
		return ErrTxPending
	}
	if mem.cache.Contains(tx.ID) {
		return ErrTxInCache
	}

	raw, err := tmjson.Marshal(tx)
	if err != nil {
		return err
	}

	stream, err := mem.acquireStream(tx.SenderAddress)
	if err != nil {
		return err
	}
	// acquireStream返回时持有stream锁和一个in-flight名额
	defer func() {
		stream.mtx.Unlock()
		atomic.AddInt32(&stream.inFlight, -1)
		mem.retireIfIdle(stream)
	}()

	if _, ok := mem.txsMap.Load(tx.ID); ok {
		return ErrTxPending
	}
	if len(stream.entries) >= mem.config.MaxPendingTransactionsPerAccount {
		return ErrStreamFull{Address: tx.SenderAddress, Cap: mem.config.MaxPendingTransactionsPerAccount}
	}
	if stream.hasRegistration {
		return ErrRegistrationPending{Address: tx.SenderAddress}
	}
	if tx.Type.RegistrationType() && len(stream.entries) > 0 {
		return ErrRegistrationNotAlone{Address: tx.SenderAddress}
	}
	if tx.Type == types.TxTypeRegisterMultisigDetails && mem.pendingPacketCount(tx.SenderAddress) > 0 {
		return types.NewInvalidTransactionError(tx.ID,
			"%v has signed pending multisig transactions, cannot rotate the member key", tx.SenderAddress)
	}

	if err := mem.checkStoreRules(tx); err != nil {
		return err
	}
	if err := mem.auth.VerifyTransaction(stream.account, stream.members, tx, mem.nowFn()); err != nil {
		return err
	}

	memTx := &mempoolTx{
		tx:       tx.Copy(),
		raw:      raw,
		received: mem.nowFn(),
		height:   atomic.LoadUint64(&mem.height),
	}
	memTx.eligibleAt = memTx.received
	if ms := mem.propagationJitter.Milliseconds(); ms > 0 {
		memTx.eligibleAt += tmrand.Int63n(ms)
	}
	if err := mem.admitToWindows(stream, memTx); err != nil {
		return err
	}
	memTx.senders.Store(txInfo.SenderID, struct{}{})

	stream.entries = append(stream.entries, memTx)
	stream.account.Balance = stream.account.Balance.Sub(memTx.tx.TotalSpend())
	if memTx.tx.Type.RegistrationType() {
		stream.hasRegistration = true
	}

	elem := mem.txs.PushBack(memTx)
	memTx.elem = elem
	mem.txsMap.Store(memTx.tx.ID, elem)
	atomic.AddInt64(&mem.txsBytes, int64(len(raw)))
	mem.cache.Add(memTx.tx.ID, struct{}{})

	mem.metric.MarkPending(mem.txs.Len(), atomic.LoadInt64(&mem.txsBytes))
	mem.notifyTxsAvailable()
	if mem.evsw != nil {
		mem.evsw.FireEvent(types.EventTransaction, &types.EventDataTransaction{Transaction: memTx.tx})
	}
	mem.logger.Debug("added transaction", "id", memTx.tx.ID, "type", memTx.tx.Type,
		"sender", memTx.tx.SenderAddress, "peer", txInfo.SenderP2PID)
	return nil
}

// ReapForBlock 为下一个区块取交易。每个发送者一组：组内sig交易
// current key在前、next key在后并按序号升序，multisig交易按成员
// 签名包的归一化平均序号升序（每个成员先减去组内最低序号再平均）；
// 组间按每笔平均手续费从高到低，并列时按地址排序保证所有节点取出
// 同一序列。截断到max时保留组的前缀，串行有效性不受影响
func (mem *StreamMempool) ReapForBlock(max int) types.Transactions {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if max < 0 {
		max = mem.txs.Len()
	}

	mem.streamsMtx.Lock()
	streams := make([]*senderStream, 0, len(mem.streams))
	for _, s := range mem.streams {
		streams = append(streams, s)
	}
	mem.streamsMtx.Unlock()

	groups := make([]*senderGroup, 0, len(streams))
	for _, stream := range streams {
		if g := stream.snapshotGroup(); g != nil {
			groups = append(groups, g)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		// totalFee/len比较用交叉相乘，避免大数除法丢精度
		cmp := new(big.Int).Mul(a.totalFee.Int(), big.NewInt(int64(len(b.txs)))).
			Cmp(new(big.Int).Mul(b.totalFee.Int(), big.NewInt(int64(len(a.txs)))))
		if cmp != 0 {
			return cmp > 0
		}
		return a.address < b.address
	})

	reaped := make(types.Transactions, 0, max)
	for _, g := range groups {
		for _, tx := range g.txs {
			if len(reaped) >= max {
				return reaped
			}
			reaped = append(reaped, tx)
		}
	}
	return reaped
}

// Update 删除已提交的交易并重放每个stream：账户快照从store刷新，
// 剩余pending交易重新授权，密钥被轮换后无法再验证的交易被清除。
// NOTE: caller负责Lock/Unlock
func (mem *StreamMempool) Update(height uint64, committed types.Transactions) error {
	atomic.StoreUint64(&mem.height, height)

	for _, tx := range committed {
		// 上链的id进cache，之后的gossip直接短路
		mem.cache.Add(tx.ID, struct{}{})
		mem.removeTxByID(tx.ID)
	}

	mem.refreshStreams()

	mem.notifyMtx.Lock()
	mem.notifiedTxsAvailable = false
	mem.notifyMtx.Unlock()
	mem.notifyTxsAvailable()

	mem.metric.MarkPending(mem.txs.Len(), atomic.LoadInt64(&mem.txsBytes))
	return nil
}

// ExpirePending 丢弃admission时间不晚于cutoff的pending交易
func (mem *StreamMempool) ExpirePending(cutoffTimestamp int64) int {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	dropped := 0
	mem.streamsMtx.Lock()
	streams := make([]*senderStream, 0, len(mem.streams))
	for _, s := range mem.streams {
		streams = append(streams, s)
	}
	mem.streamsMtx.Unlock()

	for _, stream := range streams {
		for _, memTx := range stream.entries {
			if memTx.received <= cutoffTimestamp {
				mem.removeTxByID(memTx.tx.ID)
				dropped++
			}
		}
	}
	if dropped > 0 {
		mem.refreshStreams()
		mem.metric.MarkExpired(int64(dropped))
		mem.metric.MarkPending(mem.txs.Len(), atomic.LoadInt64(&mem.txsBytes))
		mem.logger.Info("expired pending transactions", "count", dropped)
	}
	return dropped
}

// Flush 清空所有stream、pending交易和cache
func (mem *StreamMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}
	atomic.StoreInt64(&mem.txsBytes, 0)
	mem.cache.Purge()

	mem.streamsMtx.Lock()
	for addr, s := range mem.streams {
		s.retired = true
		delete(mem.streams, addr)
	}
	mem.streamsMtx.Unlock()

	mem.windowsMtx.Lock()
	mem.memberWindows = make(map[string]*keyWindow)
	mem.packetCounts = make(map[string]int)
	mem.windowsMtx.Unlock()

	mem.metric.MarkPending(0, 0)
	mem.metric.MarkStreams(0)
}

func (mem *StreamMempool) GetSignedPendingTransaction(id string) (*types.Transaction, error) {
	if e, ok := mem.txsMap.Load(id); ok {
		return e.(*clist.CElement).Value.(*mempoolTx).tx.Copy(), nil
	}
	return nil, types.NewInvalidActionError(types.ErrNamePendingTransactionDidNotExist,
		"pending transaction %v did not exist", id)
}

func (mem *StreamMempool) GetOutboundPendingTransactions(walletAddress string) []*types.Transaction {
	mem.streamsMtx.Lock()
	stream, ok := mem.streams[walletAddress]
	mem.streamsMtx.Unlock()
	if !ok {
		return nil
	}

	stream.mtx.Lock()
	defer stream.mtx.Unlock()
	txs := make([]*types.Transaction, 0, len(stream.entries))
	for _, memTx := range stream.entries {
		txs = append(txs, memTx.tx.Copy())
	}
	return txs
}

// TxsWaitChan unblocks when transactions are available in the mempool.
func (mem *StreamMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

// TxsFront returns the first transaction in the broadcast order.
func (mem *StreamMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// ------------------------------
// admission internals

// acquireStream 返回时持有stream的锁和一个in-flight名额。
// stream可能在取到引用和上锁之间被退役，此时重试
func (mem *StreamMempool) acquireStream(address string) (*senderStream, error) {
	for {
		stream, err := mem.streamFor(address)
		if err != nil {
			return nil, err
		}
		if n := atomic.AddInt32(&stream.inFlight, 1); int(n) > mem.config.MaxTransactionBackpressurePerAccount {
			atomic.AddInt32(&stream.inFlight, -1)
			return nil, ErrStreamBackpressure{Address: address, Cap: mem.config.MaxTransactionBackpressurePerAccount}
		}
		stream.mtx.Lock()
		if !stream.retired {
			return stream, nil
		}
		stream.mtx.Unlock()
		atomic.AddInt32(&stream.inFlight, -1)
	}
}

func (mem *StreamMempool) streamFor(address string) (*senderStream, error) {
	mem.streamsMtx.Lock()
	stream, ok := mem.streams[address]
	mem.streamsMtx.Unlock()
	if ok {
		return stream, nil
	}

	account, members, err := mem.loadSenderSnapshot(address)
	if err != nil {
		return nil, err
	}

	mem.streamsMtx.Lock()
	defer mem.streamsMtx.Unlock()
	if stream, ok = mem.streams[address]; ok {
		return stream, nil
	}
	stream = &senderStream{address: address, account: account, members: members}
	mem.streams[address] = stream
	mem.metric.MarkStreams(len(mem.streams))
	return stream, nil
}

func (mem *StreamMempool) loadSenderSnapshot(address string) (*types.Account, map[string]*types.Account, error) {
	account, err := mem.store.GetAccount(address)
	if err != nil {
		if !types.IsNotFound(err) {
			return nil, nil, err
		}
		// 首次使用的地址：零余额默认账户，认证走地址派生规则
		account = types.NewAccount(address)
	}
	if !account.IsMultisig() {
		return account, nil, nil
	}

	memberAddrs, err := mem.store.GetMultisigWalletMembers(address)
	if err != nil {
		return nil, nil, err
	}
	members := make(map[string]*types.Account, len(memberAddrs))
	for _, addr := range memberAddrs {
		member, err := mem.store.GetAccount(addr)
		if err != nil {
			if !types.IsNotFound(err) {
				return nil, nil, err
			}
			member = types.NewAccount(addr)
		}
		members[addr] = member
	}
	return account, members, nil
}

func (mem *StreamMempool) retireIfIdle(stream *senderStream) {
	stream.mtx.Lock()
	if stream.retired || len(stream.entries) != 0 || atomic.LoadInt32(&stream.inFlight) != 0 {
		stream.mtx.Unlock()
		return
	}
	stream.retired = true
	stream.mtx.Unlock()

	mem.streamsMtx.Lock()
	if cur, ok := mem.streams[stream.address]; ok && cur == stream {
		delete(mem.streams, stream.address)
		mem.metric.MarkStreams(len(mem.streams))
	}
	mem.streamsMtx.Unlock()
}

// checkStoreRules 需要读store的授权规则：交易未上链、投票集
// 约束、multisig钱包注册的成员资格。失败的投票在区块内按“空操作
// 但收手续费”处理，这里提前拒绝是为了不给发送者烧钱
func (mem *StreamMempool) checkStoreRules(tx *types.Transaction) error {
	committed, err := mem.store.HasTransaction(tx.ID)
	if err != nil {
		return err
	}
	if committed {
		return ErrTxInCache
	}

	switch tx.Type {
	case types.TxTypeVote:
		ok, err := mem.store.HasDelegate(tx.DelegateAddress)
		if err != nil {
			return err
		}
		if !ok {
			return types.NewInvalidTransactionError(tx.ID, "delegate %v does not exist", tx.DelegateAddress)
		}
		voted, err := mem.store.HasVoteForDelegate(tx.SenderAddress, tx.DelegateAddress)
		if err != nil {
			return err
		}
		if voted {
			return types.NewInvalidTransactionError(tx.ID,
				"%v already votes for %v", tx.SenderAddress, tx.DelegateAddress)
		}
		votes, err := mem.store.GetAccountVotes(tx.SenderAddress)
		if err != nil && !types.IsNotFound(err) {
			return err
		}
		if len(votes) >= mem.rules.MaxVotesPerAccount {
			return types.NewInvalidTransactionError(tx.ID,
				"%v already votes for %d delegates (cap %d)", tx.SenderAddress, len(votes), mem.rules.MaxVotesPerAccount)
		}
	case types.TxTypeUnvote:
		voted, err := mem.store.HasVoteForDelegate(tx.SenderAddress, tx.DelegateAddress)
		if err != nil {
			return err
		}
		if !voted {
			return types.NewInvalidTransactionError(tx.ID,
				"%v has no vote for %v", tx.SenderAddress, tx.DelegateAddress)
		}
	case types.TxTypeRegisterMultisigWallet:
		for _, member := range tx.MemberAddresses {
			acc, err := mem.store.GetAccount(member)
			if err != nil {
				if types.IsNotFound(err) {
					return types.NewInvalidTransactionError(tx.ID, "member %v does not exist", member)
				}
				return err
			}
			if acc.IsMultisig() {
				return types.NewInvalidTransactionError(tx.ID, "member %v is itself a multisig wallet", member)
			}
			if !acc.HasMultisigKeys() {
				return types.NewInvalidTransactionError(tx.ID, "member %v has no registered multisig key", member)
			}
		}
	}
	return nil
}

// admitToWindows 检查并扩展密钥序号排序窗口。
// sig发送者的窗口挂在stream上；multisig成员的窗口是全局的
func (mem *StreamMempool) admitToWindows(stream *senderStream, memTx *mempoolTx) error {
	tx := memTx.tx
	if stream.account.IsMultisig() {
		memTx.memberUse = make(map[string]keyUse, len(tx.Signatures))
		for i := range tx.Signatures {
			sig := &tx.Signatures[i]
			use := keyUse{Index: sig.NextMultisigKeyIndex}
			if member, ok := stream.members[sig.SignerAddress]; ok {
				_, use.UsedNext = member.MatchesMultisigKey(sig.MultisigPublicKey)
			}
			memTx.memberUse[sig.SignerAddress] = use
		}

		mem.windowsMtx.Lock()
		defer mem.windowsMtx.Unlock()
		for addr, use := range memTx.memberUse {
			if w, ok := mem.memberWindows[addr]; ok && !w.admits(use.UsedNext, use.Index) {
				return ErrKeyIndexOrder{Address: addr, Index: use.Index, UsedNext: use.UsedNext}
			}
		}
		for addr, use := range memTx.memberUse {
			w, ok := mem.memberWindows[addr]
			if !ok {
				w = &keyWindow{}
				mem.memberWindows[addr] = w
			}
			w.extend(use.UsedNext, use.Index)
			mem.packetCounts[addr]++
		}
		return nil
	}

	usedNext := false
	if stream.account.HasSigKeys() {
		_, usedNext = stream.account.MatchesSigKey(tx.SigPublicKey)
	}
	memTx.usedNextKey = usedNext
	memTx.keyIndex = tx.NextSigKeyIndex
	if !stream.window.admits(usedNext, tx.NextSigKeyIndex) {
		return ErrKeyIndexOrder{Address: tx.SenderAddress, Index: tx.NextSigKeyIndex, UsedNext: usedNext}
	}
	stream.window.extend(usedNext, tx.NextSigKeyIndex)
	return nil
}

func (mem *StreamMempool) pendingPacketCount(address string) int {
	mem.windowsMtx.Lock()
	defer mem.windowsMtx.Unlock()
	return mem.packetCounts[address]
}

// ------------------------------
// update internals，caller持有updateMtx写锁

func (mem *StreamMempool) removeTxByID(id string) {
	e, ok := mem.txsMap.Load(id)
	if !ok {
		return
	}
	elem := e.(*clist.CElement)
	memTx := elem.Value.(*mempoolTx)
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(id)
	atomic.AddInt64(&mem.txsBytes, -int64(len(memTx.raw)))
}

// refreshStreams 重建所有排序窗口并重放每个stream
func (mem *StreamMempool) refreshStreams() {
	mem.windowsMtx.Lock()
	mem.memberWindows = make(map[string]*keyWindow)
	mem.packetCounts = make(map[string]int)
	mem.windowsMtx.Unlock()

	mem.streamsMtx.Lock()
	streams := make([]*senderStream, 0, len(mem.streams))
	for _, s := range mem.streams {
		streams = append(streams, s)
	}
	mem.streamsMtx.Unlock()

	now := mem.nowFn()
	for _, stream := range streams {
		mem.replayStream(stream, now)
	}
	mem.retireEmptyStreams()
}

func (mem *StreamMempool) replayStream(stream *senderStream, now int64) {
	account, members, err := mem.loadSenderSnapshot(stream.address)
	if err != nil {
		// store暂时不可用时保留原快照，交易留到下次刷新再判
		mem.logger.Error("failed to refresh stream snapshot", "address", stream.address, "err", err)
		return
	}

	// GetOutboundPendingTransactions只拿stream锁就读entries，
	// 重放期间的改写也要在锁内
	stream.mtx.Lock()
	defer stream.mtx.Unlock()

	stream.account = account
	stream.members = members
	entries := stream.entries
	stream.entries = nil
	stream.window = keyWindow{}
	stream.hasRegistration = false

	for _, memTx := range entries {
		if _, ok := mem.txsMap.Load(memTx.tx.ID); !ok {
			continue // 已提交或已过期
		}
		if err := mem.readmit(stream, memTx, now); err != nil {
			mem.removeTxByID(memTx.tx.ID)
			mem.metric.MarkRecheckFailed(1)
			mem.logger.Debug("dropped pending transaction after refresh",
				"id", memTx.tx.ID, "sender", memTx.tx.SenderAddress, "err", err)
		}
	}
}

func (mem *StreamMempool) readmit(stream *senderStream, memTx *mempoolTx, now int64) error {
	tx := memTx.tx
	if err := mem.checkStoreRules(tx); err != nil {
		return err
	}
	if err := mem.auth.VerifyTransaction(stream.account, stream.members, tx, now); err != nil {
		return err
	}
	if err := mem.admitToWindows(stream, memTx); err != nil {
		return err
	}
	stream.entries = append(stream.entries, memTx)
	stream.account.Balance = stream.account.Balance.Sub(tx.TotalSpend())
	if tx.Type.RegistrationType() {
		stream.hasRegistration = true
	}
	return nil
}

func (mem *StreamMempool) retireEmptyStreams() {
	mem.streamsMtx.Lock()
	defer mem.streamsMtx.Unlock()
	for addr, s := range mem.streams {
		if len(s.entries) == 0 && atomic.LoadInt32(&s.inFlight) == 0 {
			s.retired = true
			delete(mem.streams, addr)
		}
	}
	mem.metric.MarkStreams(len(mem.streams))
}

func (mem *StreamMempool) notifyTxsAvailable() {
	if mem.txs.Len() == 0 || mem.txsAvailable == nil {
		return
	}
	mem.notifyMtx.Lock()
	defer mem.notifyMtx.Unlock()
	if !mem.notifiedTxsAvailable {
		mem.notifiedTxsAvailable = true
		select {
		case mem.txsAvailable <- struct{}{}:
		default:
		}
	}
}

// ------------------------------

type senderStream struct {
	address string

	mtx     tmsync.Mutex
	retired bool

	// 账户快照，余额已扣减所有pending交易；multisig钱包再带一份
	// 成员地址到成员账户的映射
	account *types.Account
	members map[string]*types.Account

	entries         []*mempoolTx
	window          keyWindow
	hasRegistration bool

	inFlight int32 // atomic
}

type senderGroup struct {
	address  string
	txs      []*types.Transaction
	totalFee *types.Amount
}

// snapshotGroup 复制stream的pending交易并排定组内顺序
func (stream *senderStream) snapshotGroup() *senderGroup {
	stream.mtx.Lock()
	defer stream.mtx.Unlock()
	if len(stream.entries) == 0 {
		return nil
	}

	entries := append([]*mempoolTx(nil), stream.entries...)
	if stream.account.IsMultisig() {
		// 归一化：每个成员以组内pending签名包的最低序号为基准。
		// 直接平均原始序号时，带着某个成员旧序号的交易会被
		// 其他成员的大序号抬到新序号交易之后，上链就回退该成员的密钥链
		base := make(map[string]uint64)
		for _, memTx := range entries {
			for addr, use := range memTx.memberUse {
				if cur, ok := base[addr]; !ok || use.Index < cur {
					base[addr] = use.Index
				}
			}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].avgMemberIndex(base) < entries[j].avgMemberIndex(base)
		})
	} else {
		sort.SliceStable(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.usedNextKey != b.usedNextKey {
				return !a.usedNextKey
			}
			return a.keyIndex < b.keyIndex
		})
	}

	g := &senderGroup{address: stream.address, totalFee: types.ZeroAmount()}
	for _, memTx := range entries {
		g.txs = append(g.txs, memTx.tx)
		g.totalFee = g.totalFee.Add(memTx.tx.Fee)
	}
	return g
}

type mempoolTx struct {
	tx         *types.Transaction
	raw        []byte // tmjson编码，广播和体积统计共用
	received   int64
	eligibleAt int64  // received加上随机延迟，转播不早于这一刻
	height     uint64 // admission时的链尾高度

	// 排序窗口记录：sig发送者记本交易用的key和序号，
	// multisig发送者记每个签名成员的
	usedNextKey bool
	keyIndex    uint64
	memberUse   map[string]keyUse

	senders sync.Map
	elem    *clist.CElement
}

// Height returns the height of the chain tip when the transaction was
// admitted.
func (memTx *mempoolTx) Height() uint64 {
	return atomic.LoadUint64(&memTx.height)
}

// avgMemberIndex 各签名成员的key序号减去base里该成员的基准后取平均
func (memTx *mempoolTx) avgMemberIndex(base map[string]uint64) float64 {
	if len(memTx.memberUse) == 0 {
		return 0
	}
	idxs := make([]float64, 0, len(memTx.memberUse))
	for addr, use := range memTx.memberUse {
		idxs = append(idxs, float64(use.Index-base[addr]))
	}
	return utils.Avg(idxs...)
}

type keyUse struct {
	UsedNext bool
	Index    uint64
}

// keyWindow 有状态签名链的排序窗口。底层签名方案按序号演化，
// 序号k的交易排在序号k'<k之后处理时后者会失效；窗口规则保证
// pending集合里current key的序号全部严格低于next key的序号
type keyWindow struct {
	hasCurrent     bool
	highestCurrent uint64
	hasNext        bool
	lowestNext     uint64
}

func (w *keyWindow) admits(usedNext bool, index uint64) bool {
	if usedNext {
		return !w.hasCurrent || index > w.highestCurrent
	}
	return !w.hasNext || index < w.lowestNext
}

func (w *keyWindow) extend(usedNext bool, index uint64) {
	if usedNext {
		if !w.hasNext || index < w.lowestNext {
			w.hasNext = true
			w.lowestNext = index
		}
	} else {
		if !w.hasCurrent || index > w.highestCurrent {
			w.hasCurrent = true
			w.highestCurrent = index
		}
	}
}
