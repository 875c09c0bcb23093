package consensus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	mempl "ldpos_chain/mempool"
	slotmock "ldpos_chain/slot/mock"
	"ldpos_chain/state"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const (
	testSymbol     = "ldpos"
	testNow        = int64(90000000)
	genesisBalance = int64(100000000000000000)
)

type consensusFixture struct {
	t          *testing.T
	config     *cfg.ConsensusConfig
	syncConfig *cfg.SyncConfig
	store      *store.KVStore
	mempool    *mempl.StreamMempool
	clock      *slotmock.Clock
	exec       state.BlockExecutor
	cs         *ConsensusState

	// client缓存：本地密钥序号要跨多个区块跟着链走
	clients map[int]*cryptoclient.WalletClient

	evMtx    sync.Mutex
	recorded []recordedEvent
}

type recordedEvent struct {
	name string
	data events.EventData
}

// newConsensusFixture 组装一个完整的单节点共识栈，localForgers里的
// 委托人由本节点经营
func newConsensusFixture(t *testing.T, forgerCount int, localForgers []int,
	mutators ...func(*cfg.ConsensusConfig, *cfg.SyncConfig)) *consensusFixture {

	logger := log.TestingLogger()
	consensus := cfg.TestConsensusConfig()
	consensus.ForgerCount = forgerCount
	syncConfig := cfg.TestSyncConfig()
	for _, m := range mutators {
		m(consensus, syncConfig)
	}
	rules := cfg.DefaultTransactionConfig()

	st := store.NewMemStore(logger)
	genesisState, err := state.MakeGenesisState(st, cfg.TestGenesisDoc(testSymbol, forgerCount), forgerCount)
	require.NoError(t, err)

	clock := slotmock.NewClock(consensus.ForgingInterval, testNow)
	mem := mempl.NewStreamMempool(cfg.TestMempoolConfig(), rules, testSymbol, st, genesisState.Height,
		mempl.WithNow(clock.Now))
	mem.SetLogger(logger)

	exec := state.NewBlockExecutor(consensus, rules, testSymbol, st, mem, clock)
	exec.SetLogger(logger)

	f := &consensusFixture{
		t:          t,
		config:     consensus,
		syncConfig: syncConfig,
		store:      st,
		mempool:    mem,
		clock:      clock,
		exec:       exec,
		clients:    make(map[int]*cryptoclient.WalletClient),
	}

	var forgers []cryptoclient.Client
	for _, i := range localForgers {
		forgers = append(forgers, f.client(i))
	}
	cs := NewConsensusState(consensus, syncConfig, exec, st, mem, clock, genesisState,
		WithForgers(forgers...))
	cs.SetLogger(logger)
	exec.SetEventSwitch(cs.EventSwitch())
	f.cs = cs

	f.recordEvents(types.EventBootstrap, types.EventChainChanges,
		EventNewBlock, EventRelayBlock, EventNewBlockSignature, EventRelayBlockSignature)

	return f
}

func (f *consensusFixture) client(i int) *cryptoclient.WalletClient {
	c, ok := f.clients[i]
	if !ok {
		c = cryptoclient.NewClient(testSymbol, cfg.TestWalletSeed(i))
		f.clients[i] = c
	}
	return c
}

func (f *consensusFixture) delegateClient(address string) *cryptoclient.WalletClient {
	for i := 0; i <= f.config.ForgerCount; i++ {
		if c := f.client(i); c.Address() == address {
			return c
		}
	}
	f.t.Fatalf("no wallet seed behind delegate %v", address)
	return nil
}

func (f *consensusFixture) seedOf(address string) string {
	for i := 0; i <= f.config.ForgerCount; i++ {
		if f.client(i).Address() == address {
			return cfg.TestWalletSeed(i)
		}
	}
	f.t.Fatalf("no wallet seed behind %v", address)
	return ""
}

// countersigners 返回count个不是锻造者的委托人client
func (f *consensusFixture) countersigners(forgerAddress string, count int) []*cryptoclient.WalletClient {
	var signers []*cryptoclient.WalletClient
	for i := 0; i < f.config.ForgerCount && len(signers) < count; i++ {
		if c := f.client(i); c.Address() != forgerAddress {
			signers = append(signers, c)
		}
	}
	require.Len(f.t, signers, count)
	return signers
}

func (f *consensusFixture) transfer(client *cryptoclient.WalletClient, recipient string, amount, fee int64) *types.Transaction {
	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		SenderAddress:    client.Address(),
		RecipientAddress: recipient,
		Amount:           types.NewAmount(amount),
		Fee:              types.NewAmount(fee),
		Timestamp:        f.clock.Now() - 1000,
	}
	require.NoError(f.t, client.PrepareTransaction(tx))
	return tx
}

func (f *consensusFixture) recordEvents(names ...string) {
	for _, name := range names {
		name := name
		err := f.cs.EventSwitch().AddListenerForEvent("test", name,
			func(data events.EventData) {
				f.evMtx.Lock()
				defer f.evMtx.Unlock()
				f.recorded = append(f.recorded, recordedEvent{name, data})
			})
		require.NoError(f.t, err)
	}
}

func (f *consensusFixture) eventCount(name string) int {
	f.evMtx.Lock()
	defer f.evMtx.Unlock()
	count := 0
	for _, ev := range f.recorded {
		if ev.name == name {
			count++
		}
	}
	return count
}

func (f *consensusFixture) eventsOf(name string) []events.EventData {
	f.evMtx.Lock()
	defer f.evMtx.Unlock()
	var data []events.EventData
	for _, ev := range f.recorded {
		if ev.name == name {
			data = append(data, ev.data)
		}
	}
	return data
}

// enterNextSlot 把mock时钟推到下一个slot边界并让锻造循环进入它
func (f *consensusFixture) enterNextSlot() int64 {
	next := f.clock.CurrentSlot() + 1
	require.True(f.t, f.clock.WaitForSlot(context.Background(), next))
	f.cs.enterSlot(next)
	return next
}

//-----------------------------------------------------------------------------

// 5个委托人全部由本节点经营，锻造循环应该持续出块
func TestSlotLoopForgesAndProcesses(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	f := newConsensusFixture(t, 5, []int{0, 1, 2, 3, 4},
		func(consensus *cfg.ConsensusConfig, _ *cfg.SyncConfig) {
			consensus.MinTransactionsPerBlock = 0
		})

	require.NoError(t, f.cs.Start())
	defer func() {
		require.NoError(t, f.cs.Stop())
	}()

	require.Eventually(t, func() bool {
		return f.cs.GetState().Height >= 3
	}, 5*time.Second, 10*time.Millisecond)

	chainState := f.cs.GetState()
	assert.NotEmpty(t, chainState.LastBlockID)

	// 提交跟着落库
	height, err := f.store.GetMaxBlockHeight()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, height, uint64(3))

	assert.Equal(t, 1, f.eventCount(types.EventBootstrap))
	assert.GreaterOrEqual(t, f.eventCount(types.EventChainChanges), 3)
	assert.GreaterOrEqual(t, f.eventCount(EventNewBlock), 3)
}

// 本地没有锻造者，窗口内也没有区块到达，slot被跳过
func TestForgeOrReceiveTimeoutSkipsSlot(t *testing.T) {
	f := newConsensusFixture(t, 2, nil)
	ctx := context.Background()

	next := f.enterNextSlot()
	assert.Nil(t, f.cs.forgeOrReceiveStep(ctx, next))
	assert.Nil(t, f.cs.GetRoundState().ActiveBlock)
	assert.EqualValues(t, 0, f.cs.GetState().Height)
}

// 同一个slot时间戳出现两个不同的区块：先到的保留，后到的只转发
// 一次，本地委托人从此拒绝为该时间戳签名
func TestDoubleForgeDetection(t *testing.T) {
	f := newConsensusFixture(t, 2, []int{0, 1})

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()
	require.NotNil(t, rs.Forger)
	timestamp := f.clock.StartOf(next)

	first := types.MakeBlock(1, timestamp, f.cs.GetState().LastBlockID, nil)
	require.NoError(t, f.delegateClient(rs.Forger.Address).PrepareBlock(first))
	f.cs.handleMsg(msgInfo{&BlockMessage{Block: first}, ""})
	require.NotNil(t, f.cs.GetRoundState().ActiveBlock)
	assert.Equal(t, 1, f.eventCount(EventNewBlock))

	// 同一把forging key签出的兄弟区块，内容不同所以id不同
	tx := f.transfer(f.client(2), f.client(0).Address(), 5000, 10000000)
	require.NoError(t, f.mempool.AddTransaction(tx, mempl.TxInfo{}))
	sibling := types.MakeBlock(1, timestamp, f.cs.GetState().LastBlockID,
		types.Transactions{tx.Simplify()})
	rogue := cryptoclient.NewClient(testSymbol, f.seedOf(rs.Forger.Address))
	require.NoError(t, rogue.PrepareBlock(sibling))
	require.NotEqual(t, first.ID, sibling.ID)

	f.cs.handleMsg(msgInfo{&BlockMessage{Block: sibling}, "peer2"})

	assert.Equal(t, first.ID, f.cs.GetRoundState().ActiveBlock.ID)
	assert.Equal(t, timestamp, f.cs.GetRoundState().LastDoubleForgedTimestamp)
	assert.Equal(t, 1, f.eventCount(EventRelayBlock))

	// 第三个兄弟区块不再被转发
	tx2 := f.transfer(f.client(2), f.client(0).Address(), 6000, 10000000)
	require.NoError(t, f.mempool.AddTransaction(tx2, mempl.TxInfo{}))
	third := types.MakeBlock(1, timestamp, f.cs.GetState().LastBlockID,
		types.Transactions{tx2.Simplify()})
	rogue2 := cryptoclient.NewClient(testSymbol, f.seedOf(rs.Forger.Address))
	require.NoError(t, rogue2.PrepareBlock(third))
	f.cs.handleMsg(msgInfo{&BlockMessage{Block: third}, "peer3"})
	assert.Equal(t, 1, f.eventCount(EventRelayBlock))

	// 被污染的时间戳上不再产出签名
	f.cs.signBlockAsLocalDelegates(first)
	assert.Equal(t, 0, f.cs.GetRoundState().Signatures.Size())
	assert.Equal(t, 0, f.eventCount(EventNewBlockSignature))
}

// 5个委托人需要3个签名，只到2个时区块不被处理；第三个签名补齐
// 后处理照常进行
func TestQuorumTimeoutSkipsProcessing(t *testing.T) {
	f := newConsensusFixture(t, 5, nil)
	ctx := context.Background()

	tx := f.transfer(f.client(5), f.client(0).Address(), 5000, 10000000)
	require.NoError(t, f.mempool.AddTransaction(tx, mempl.TxInfo{}))

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()
	require.Equal(t, 3, f.cs.GetState().Delegates.SignatureQuorum(f.config.MinForgerBlockSignatureRatio))

	block, err := f.exec.CreateProposal(f.cs.GetState(), f.delegateClient(rs.Forger.Address), f.clock.StartOf(next))
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)

	f.cs.handleMsg(msgInfo{&BlockMessage{Block: block}, "peer1"})
	require.NotNil(t, f.cs.GetRoundState().ActiveBlock)

	signers := f.countersigners(rs.Forger.Address, 3)
	for _, signer := range signers[:2] {
		sig, err := signer.SignBlock(block)
		require.NoError(t, err)
		f.cs.handleMsg(msgInfo{&BlockSignatureMessage{Signature: sig}, "peer2"})
	}

	require.False(t, f.cs.collectSignaturesStep(ctx, block))
	assert.EqualValues(t, 0, f.cs.GetState().Height)
	assert.Equal(t, 0, f.eventCount(types.EventChainChanges))
	height, err := f.store.GetMaxBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 0, height)

	sig, err := signers[2].SignBlock(block)
	require.NoError(t, err)
	f.cs.handleMsg(msgInfo{&BlockSignatureMessage{Signature: sig}, "peer3"})

	require.True(t, f.cs.collectSignaturesStep(ctx, block))
	f.cs.processStep(block)

	assert.EqualValues(t, 1, f.cs.GetState().Height)
	assert.Equal(t, block.ID, f.cs.GetState().LastBlockID)
	assert.Equal(t, 1, f.eventCount(types.EventChainChanges))
}

// 交易太少的区块不上链，只通告一个skipBlock
func TestMinTransactionPolicySkipsBlock(t *testing.T) {
	f := newConsensusFixture(t, 2, []int{0, 1})
	ctx := context.Background()

	next := f.enterNextSlot()
	block := f.cs.forgeOrReceiveStep(ctx, next)
	require.NotNil(t, block)
	assert.Empty(t, block.Transactions)

	require.True(t, f.cs.collectSignaturesStep(ctx, block))
	f.cs.processStep(block)

	assert.EqualValues(t, 0, f.cs.GetState().Height)
	changes := f.eventsOf(types.EventChainChanges)
	require.Len(t, changes, 1)
	change, ok := changes[0].(*types.EventDataChainChanges)
	require.True(t, ok)
	assert.Equal(t, types.ChainChangeSkipBlock, change.Type)
	assert.Equal(t, block.ID, change.Block.ID)

	height, err := f.store.GetMaxBlockHeight()
	require.NoError(t, err)
	assert.EqualValues(t, 0, height)
}

// 同一个签名者的第二个签名包被丢弃，也不再转发
func TestBlockSignatureDedupe(t *testing.T) {
	f := newConsensusFixture(t, 3, nil)

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()

	block, err := f.exec.CreateProposal(f.cs.GetState(), f.delegateClient(rs.Forger.Address), f.clock.StartOf(next))
	require.NoError(t, err)
	f.cs.handleMsg(msgInfo{&BlockMessage{Block: block}, "peer1"})
	require.NotNil(t, f.cs.GetRoundState().ActiveBlock)

	signer := f.countersigners(rs.Forger.Address, 1)[0]
	sig, err := signer.SignBlock(block)
	require.NoError(t, err)

	f.cs.handleMsg(msgInfo{&BlockSignatureMessage{Signature: sig}, "peerA"})
	f.cs.handleMsg(msgInfo{&BlockSignatureMessage{Signature: sig}, "peerB"})

	assert.Equal(t, 1, f.cs.GetRoundState().Signatures.Size())
	assert.Equal(t, 1, f.eventCount(EventRelayBlockSignature))
}

// 时间戳不落在当前slot上的区块直接丢弃
func TestStaleBlockIgnored(t *testing.T) {
	f := newConsensusFixture(t, 2, nil)

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()

	stale := types.MakeBlock(1, f.clock.StartOf(next+1), f.cs.GetState().LastBlockID, nil)
	require.NoError(t, f.delegateClient(rs.Forger.Address).PrepareBlock(stale))

	f.cs.handleMsg(msgInfo{&BlockMessage{Block: stale}, "peer1"})
	assert.Nil(t, f.cs.GetRoundState().ActiveBlock)
}

// 区块引用了mempool里没有的pending交易：向peer索取、走完整认证
// 入队，然后才admit
func TestHandleBlockFetchesMissingTransactions(t *testing.T) {
	f := newConsensusFixture(t, 2, nil)
	network := newFakeNetwork()
	f.cs.SetPeerNetwork(network)

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()

	tx := f.transfer(f.client(2), f.client(0).Address(), 5000, 10000000)
	network.addTransaction(tx)
	require.Equal(t, 0, f.mempool.Size())

	block := types.MakeBlock(1, f.clock.StartOf(next), f.cs.GetState().LastBlockID,
		types.Transactions{tx.Simplify()})
	require.NoError(t, f.delegateClient(rs.Forger.Address).PrepareBlock(block))

	f.cs.handleMsg(msgInfo{&BlockMessage{Block: block}, "peer1"})

	require.NotNil(t, f.cs.GetRoundState().ActiveBlock)
	assert.Equal(t, 1, f.mempool.Size())
	full, err := f.mempool.GetSignedPendingTransaction(tx.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, full.SenderSignature)
	assert.EqualValues(t, 1, network.transactionFetches())
}

// 区块里的签名hash指向一个本地持有形式之外的签名，区块被拒绝
func TestSignatureHashMismatchRejectsBlock(t *testing.T) {
	f := newConsensusFixture(t, 2, nil)

	next := f.enterNextSlot()
	rs := f.cs.GetRoundState()

	tx := f.transfer(f.client(2), f.client(0).Address(), 5000, 10000000)
	require.NoError(t, f.mempool.AddTransaction(tx, mempl.TxInfo{}))

	// 锻造者在篡改后的hash上签名，区块签名本身验得过
	sim := tx.Simplify()
	sim.SenderSignatureHash = types.SignatureHash([]byte("somebody else's signature"))
	block := types.MakeBlock(1, f.clock.StartOf(next), f.cs.GetState().LastBlockID,
		types.Transactions{sim})
	require.NoError(t, f.delegateClient(rs.Forger.Address).PrepareBlock(block))

	f.cs.handleMsg(msgInfo{&BlockMessage{Block: block}, "peer1"})
	assert.Nil(t, f.cs.GetRoundState().ActiveBlock)
}

// 追链完成后本地forging密钥序号跟上链上账户
func TestAutoSyncForgingKeyIndex(t *testing.T) {
	f := newConsensusFixture(t, 2, []int{0})
	f.cs.SetPeerNetwork(newFakeNetwork())

	local := f.client(0)
	account, err := f.store.GetAccount(local.Address())
	require.NoError(t, err)
	account.NextForgingKeyIndex = 7
	require.NoError(t, f.store.UpsertAccount(account))

	f.cs.catchUpStep(context.Background())

	assert.EqualValues(t, 7, local.ForgingKeyIndex())
	assert.Equal(t, 1, f.eventCount(types.EventBootstrap))
}
