package mempool

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"

	cfg "ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

const (
	testSymbol = "ldpos"
	testNow    = int64(90000000)
)

func newTestStore(t *testing.T, forgerCount int) *store.KVStore {
	st := store.NewMemStore(log.TestingLogger())
	require.NoError(t, st.Init(cfg.TestGenesisDoc(testSymbol, forgerCount)))
	return st
}

func newTestMempool(t *testing.T, st *store.KVStore, options ...StreamMempoolOption) *StreamMempool {
	opts := append([]StreamMempoolOption{WithNow(func() int64 { return testNow })}, options...)
	mem := NewStreamMempool(cfg.TestMempoolConfig(), cfg.DefaultTransactionConfig(), testSymbol, st, 0, opts...)
	mem.SetLogger(log.TestingLogger())
	return mem
}

func testClient(i int) *cryptoclient.WalletClient {
	return cryptoclient.NewClient(testSymbol, cfg.TestWalletSeed(i))
}

func preparedTransfer(t *testing.T, client *cryptoclient.WalletClient, recipient string, amount, fee int64) *types.Transaction {
	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		SenderAddress:    client.Address(),
		RecipientAddress: recipient,
		Amount:           types.NewAmount(amount),
		Fee:              types.NewAmount(fee),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, client.PrepareTransaction(tx))
	return tx
}

// rawTransfer 绕过client手工签名，可以伪造任意的密钥序号组合
func rawTransfer(t *testing.T, seed string, signIdx, nextIdx uint64, recipient string, amount int64) *types.Transaction {
	priv := ed25519.GenPrivKeyFromSecret([]byte(fmt.Sprintf("%s/%s/%d", seed, cryptoclient.KeyChainSig, signIdx)))
	sender := types.WalletAddressFromPublicKey(testSymbol, cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0))
	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		SenderAddress:    sender,
		RecipientAddress: recipient,
		Amount:           types.NewAmount(amount),
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
		SigPublicKey:     priv.PubKey().Bytes(),
		NextSigPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, nextIdx),
		NextSigKeyIndex:  nextIdx,
	}
	sig, err := priv.Sign(tx.SigningBytes())
	require.NoError(t, err)
	tx.SenderSignature = sig
	tx.ID = tx.ComputeID()
	return tx
}

func TestAddTransactionAndQuery(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	client := testClient(2)
	recipient := testClient(0).Address()

	tx := preparedTransfer(t, client, recipient, 5000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))
	assert.Equal(t, 1, mem.Size())
	assert.Greater(t, mem.TxsBytes(), int64(0))

	got, err := mem.GetSignedPendingTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.NotEmpty(t, got.SenderSignature)

	outbound := mem.GetOutboundPendingTransactions(client.Address())
	require.Len(t, outbound, 1)
	assert.Equal(t, tx.ID, outbound[0].ID)

	err = mem.AddTransaction(tx, TxInfo{SenderID: 7})
	assert.True(t, errors.Is(err, ErrTxPending))

	_, err = mem.GetSignedPendingTransaction("ffff")
	assert.True(t, types.IsNotFound(err))
}

func TestBalanceTracksPendingSpend(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	client := testClient(2)
	recipient := testClient(0).Address()

	// 创世余额1e17，第一笔花到只剩一笔手续费
	fee := int64(10000000)
	first := preparedTransfer(t, client, recipient, 100000000000000000-2*fee, fee)
	require.NoError(t, mem.AddTransaction(first, TxInfo{}))

	// 快照余额对着pending扣减过，amount=1也付不起了
	second := preparedTransfer(t, client, recipient, 1, fee)
	err := mem.AddTransaction(second, TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds balance")
}

func TestKeyIndexOrderingWindow(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	seed := cfg.TestWalletSeed(2)
	client := testClient(2)
	recipient := testClient(0).Address()

	// 诚实的client按序推进：current key在前，next key在后
	first := preparedTransfer(t, client, recipient, 1000, 10000000)
	second := preparedTransfer(t, client, recipient, 1000, 10000000)
	require.NoError(t, mem.AddTransaction(first, TxInfo{}))
	require.NoError(t, mem.AddTransaction(second, TxInfo{}))

	// next key交易的序号等于pending current key交易的最高序号：拒绝
	equal := rawTransfer(t, seed, 1, 1, recipient, 2000)
	err := mem.AddTransaction(equal, TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicts with pending")

	// current key交易的序号不低于pending next key交易的最低序号：拒绝
	tooHigh := rawTransfer(t, seed, 0, 5, recipient, 3000)
	err = mem.AddTransaction(tooHigh, TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicts with pending")

	// 反过来也成立：先进next key的交易，序号更低的current key交易仍可入队
	mem2 := newTestMempool(t, newTestStore(t, 2))
	require.NoError(t, mem2.AddTransaction(rawTransfer(t, seed, 1, 2, recipient, 4000), TxInfo{}))
	require.NoError(t, mem2.AddTransaction(rawTransfer(t, seed, 0, 1, recipient, 5000), TxInfo{}))
}

func TestRegistrationExclusivity(t *testing.T) {
	seed := cfg.TestWalletSeed(2)
	recipient := testClient(0).Address()

	makeRegister := func(t *testing.T, client *cryptoclient.WalletClient) *types.Transaction {
		tx := &types.Transaction{
			Type:                types.TxTypeRegisterSigDetails,
			SenderAddress:       client.Address(),
			Fee:                 types.NewAmount(20000000),
			Timestamp:           testNow - 1000,
			NewSigPublicKey:     cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 10),
			NewNextSigPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 11),
			NewNextSigKeyIndex:  11,
		}
		require.NoError(t, client.PrepareTransaction(tx))
		return tx
	}

	// 注册交易pending期间，stream不再接受任何交易
	mem := newTestMempool(t, newTestStore(t, 2))
	client := testClient(2)
	require.NoError(t, mem.AddTransaction(makeRegister(t, client), TxInfo{}))
	blocked := preparedTransfer(t, client, recipient, 1000, 10000000)
	err := mem.AddTransaction(blocked, TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registration transaction is pending")

	// stream非空时注册交易进不来
	mem2 := newTestMempool(t, newTestStore(t, 2))
	client2 := testClient(2)
	require.NoError(t, mem2.AddTransaction(preparedTransfer(t, client2, recipient, 1000, 10000000), TxInfo{}))
	err = mem2.AddTransaction(makeRegister(t, client2), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty pending stream")
}

func TestStreamCap(t *testing.T) {
	st := newTestStore(t, 2)
	conf := cfg.TestMempoolConfig()
	conf.MaxPendingTransactionsPerAccount = 2
	mem := NewStreamMempool(conf, cfg.DefaultTransactionConfig(), testSymbol, st, 0,
		WithNow(func() int64 { return testNow }))
	client := testClient(2)
	recipient := testClient(0).Address()
	seed := cfg.TestWalletSeed(2)

	require.NoError(t, mem.AddTransaction(preparedTransfer(t, client, recipient, 1000, 10000000), TxInfo{}))
	require.NoError(t, mem.AddTransaction(preparedTransfer(t, client, recipient, 2000, 10000000), TxInfo{}))

	err := mem.AddTransaction(rawTransfer(t, seed, 0, 1, recipient, 3000), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is full")
}

func TestVoteRules(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	delegate0 := testClient(0).Address()
	delegate1 := testClient(1).Address()

	makeVote := func(t *testing.T, client *cryptoclient.WalletClient, txType types.TransactionType, delegate string) *types.Transaction {
		tx := &types.Transaction{
			Type:            txType,
			SenderAddress:   client.Address(),
			DelegateAddress: delegate,
			Fee:             types.NewAmount(20000000),
			Timestamp:       testNow - 1000,
		}
		require.NoError(t, client.PrepareTransaction(tx))
		return tx
	}

	// 不存在的delegate投不了
	ghost := types.WalletAddressFromPublicKey(testSymbol,
		cryptoclient.PublicKeyAt("ghost-seed", cryptoclient.KeyChainSig, 0))
	err := mem.AddTransaction(makeVote(t, testClient(2), types.TxTypeVote, ghost), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	// 合法投票
	require.NoError(t, mem.AddTransaction(makeVote(t, testClient(2), types.TxTypeVote, delegate0), TxInfo{}))

	// 创世里delegate 0已给自己投过票
	err = mem.AddTransaction(makeVote(t, testClient(0), types.TxTypeVote, delegate0), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already votes for")

	// 没投过的不能unvote
	err = mem.AddTransaction(makeVote(t, testClient(1), types.TxTypeUnvote, delegate0), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no vote for")

	// 投票数到上限后不能再投新的delegate
	rules := cfg.DefaultTransactionConfig()
	rules.MaxVotesPerAccount = 1
	capped := NewStreamMempool(cfg.TestMempoolConfig(), rules, testSymbol, st, 0,
		WithNow(func() int64 { return testNow }))
	err = capped.AddTransaction(makeVote(t, testClient(0), types.TxTypeVote, delegate1), TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cap 1")
}

func TestUpdateRemovesCommitted(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	client := testClient(2)
	tx := preparedTransfer(t, client, testClient(0).Address(), 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))

	mem.Lock()
	require.NoError(t, mem.Update(1, types.Transactions{tx}))
	mem.Unlock()
	assert.Equal(t, 0, mem.Size())
	assert.Equal(t, int64(0), mem.TxsBytes())

	// 提交过的id进了cache，同一笔交易不会再被接受
	err := mem.AddTransaction(tx, TxInfo{})
	assert.True(t, errors.Is(err, ErrTxInCache))
}

func TestUpdatePurgesAfterKeyRotation(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	seed := cfg.TestWalletSeed(2)
	client := testClient(2)
	tx := preparedTransfer(t, client, testClient(0).Address(), 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))

	// 别的节点锻造的区块轮换了发送者的sig密钥链
	account, err := st.GetAccount(client.Address())
	require.NoError(t, err)
	account.SigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 5)
	account.NextSigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 6)
	account.NextSigKeyIndex = 6
	require.NoError(t, st.UpsertAccount(account))

	mem.Lock()
	require.NoError(t, mem.Update(1, nil))
	mem.Unlock()
	assert.Equal(t, 0, mem.Size())
}

func TestExpirePending(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	client := testClient(2)
	tx := preparedTransfer(t, client, testClient(0).Address(), 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))

	assert.Equal(t, 0, mem.ExpirePending(testNow-1))
	assert.Equal(t, 1, mem.Size())

	// cutoff正好等于admission时间：过期
	assert.Equal(t, 1, mem.ExpirePending(testNow))
	assert.Equal(t, 0, mem.Size())
}

func TestReapForBlockOrdering(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	a, b, c := testClient(0), testClient(1), testClient(2)
	seedC := cfg.TestWalletSeed(2)

	a1 := preparedTransfer(t, a, c.Address(), 1000, 30000000)
	a2 := preparedTransfer(t, a, c.Address(), 1000, 30000000)
	b1 := preparedTransfer(t, b, c.Address(), 1000, 50000000)
	// 同一个key可以重复使用，大流量发送者靠它超过两笔在途交易
	c1 := rawTransfer(t, seedC, 0, 1, a.Address(), 1001)
	c2 := rawTransfer(t, seedC, 0, 1, a.Address(), 1002)
	c3 := rawTransfer(t, seedC, 0, 1, a.Address(), 1003)

	for _, tx := range []*types.Transaction{c1, c2, c3, a1, a2, b1} {
		require.NoError(t, mem.AddTransaction(tx, TxInfo{}))
	}

	// 组间按每笔平均手续费降序，组内按密钥序号
	reaped := mem.ReapForBlock(-1)
	require.Len(t, reaped, 6)
	assert.Equal(t, []string{b1.ID, a1.ID, a2.ID, c1.ID, c2.ID, c3.ID}, reaped.IDs())

	// 截断只切掉尾部的组前缀
	truncated := mem.ReapForBlock(4)
	assert.Equal(t, []string{b1.ID, a1.ID, a2.ID, c1.ID}, truncated.IDs())
}

func TestMultisigStream(t *testing.T) {
	st := newTestStore(t, 2)
	memberA, memberB := testClient(0), testClient(1)
	seedA := cfg.TestWalletSeed(0)

	// 给成员账户补上multisig密钥链，再把普通钱包转成multisig钱包
	for i, member := range []*cryptoclient.WalletClient{memberA, memberB} {
		seed := cfg.TestWalletSeed(i)
		account, err := st.GetAccount(member.Address())
		require.NoError(t, err)
		account.MultisigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainMultisig, 0)
		account.NextMultisigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainMultisig, 1)
		account.NextMultisigKeyIndex = 1
		require.NoError(t, st.UpsertAccount(account))
	}
	wallet := testClient(2)
	require.NoError(t, st.RegisterMultisigWallet(wallet.Address(),
		[]string{memberA.Address(), memberB.Address()}, 2))

	mem := newTestMempool(t, st)

	makeTx := func(amount int64) *types.Transaction {
		tx := &types.Transaction{
			Type:             types.TxTypeTransfer,
			SenderAddress:    wallet.Address(),
			RecipientAddress: memberA.Address(),
			Amount:           types.NewAmount(amount),
			// 基础手续费加两个成员的per member附加费
			Fee:       types.NewAmount(11000000),
			Timestamp: testNow - 1000,
		}
		require.NoError(t, wallet.PrepareMultisigTransaction(tx))
		sigA, err := memberA.SignMultisigTransaction(tx)
		require.NoError(t, err)
		sigB, err := memberB.SignMultisigTransaction(tx)
		require.NoError(t, err)
		tx.Signatures = []types.MultisigSignature{*sigA, *sigB}
		return tx
	}

	require.NoError(t, mem.AddTransaction(makeTx(1000), TxInfo{}))
	// 成员的key index推进到next key，窗口仍放行
	require.NoError(t, mem.AddTransaction(makeTx(2000), TxInfo{}))
	assert.Equal(t, 2, mem.Size())

	// 成员在pending多签交易上有签名时，不能轮换自己的multisig密钥
	rotate := &types.Transaction{
		Type:                     types.TxTypeRegisterMultisigDetails,
		SenderAddress:            memberA.Address(),
		Fee:                      types.NewAmount(20000000),
		Timestamp:                testNow - 1000,
		NewMultisigPublicKey:     cryptoclient.PublicKeyAt(seedA, cryptoclient.KeyChainMultisig, 5),
		NewNextMultisigPublicKey: cryptoclient.PublicKeyAt(seedA, cryptoclient.KeyChainMultisig, 6),
		NewNextMultisigKeyIndex:  6,
	}
	require.NoError(t, memberA.PrepareTransaction(rotate))
	err := mem.AddTransaction(rotate, TxInfo{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signed pending multisig transactions")
}

// rawMultisigPacket 绕过client手工签名成员签名包，可以伪造任意的
// multisig密钥序号组合
func rawMultisigPacket(t *testing.T, tx *types.Transaction, seed string, signIdx, nextIdx uint64) types.MultisigSignature {
	priv := ed25519.GenPrivKeyFromSecret([]byte(fmt.Sprintf("%s/%s/%d", seed, cryptoclient.KeyChainMultisig, signIdx)))
	sig, err := priv.Sign(tx.SigningBytes())
	require.NoError(t, err)
	return types.MultisigSignature{
		SignerAddress:         types.WalletAddressFromPublicKey(testSymbol, cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0)),
		MultisigPublicKey:     priv.PubKey().Bytes(),
		NextMultisigPublicKey: cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainMultisig, nextIdx),
		NextMultisigKeyIndex:  nextIdx,
		Signature:             sig,
	}
}

func TestMultisigReapNormalizedOrdering(t *testing.T) {
	st := newTestStore(t, 2)
	memberA, memberB := testClient(0), testClient(1)
	seedA, seedB := cfg.TestWalletSeed(0), cfg.TestWalletSeed(1)

	// 成员A的multisig密钥链已经推进到高序号，成员B还在链头
	accountA, err := st.GetAccount(memberA.Address())
	require.NoError(t, err)
	accountA.MultisigPublicKey = cryptoclient.PublicKeyAt(seedA, cryptoclient.KeyChainMultisig, 20)
	accountA.NextMultisigPublicKey = cryptoclient.PublicKeyAt(seedA, cryptoclient.KeyChainMultisig, 21)
	accountA.NextMultisigKeyIndex = 21
	require.NoError(t, st.UpsertAccount(accountA))

	accountB, err := st.GetAccount(memberB.Address())
	require.NoError(t, err)
	accountB.MultisigPublicKey = cryptoclient.PublicKeyAt(seedB, cryptoclient.KeyChainMultisig, 0)
	accountB.NextMultisigPublicKey = cryptoclient.PublicKeyAt(seedB, cryptoclient.KeyChainMultisig, 1)
	accountB.NextMultisigKeyIndex = 1
	require.NoError(t, st.UpsertAccount(accountB))

	wallet := testClient(2)
	require.NoError(t, st.RegisterMultisigWallet(wallet.Address(),
		[]string{memberA.Address(), memberB.Address()}, 1))

	mem := newTestMempool(t, st)

	makeTx := func(amount int64) *types.Transaction {
		tx := &types.Transaction{
			Type:             types.TxTypeTransfer,
			SenderAddress:    wallet.Address(),
			RecipientAddress: memberA.Address(),
			Amount:           types.NewAmount(amount),
			Fee:              types.NewAmount(11000000),
			Timestamp:        testNow - 1000,
		}
		require.NoError(t, wallet.PrepareMultisigTransaction(tx))
		return tx
	}

	// 第一笔两个成员都用current key签
	tx1 := makeTx(1000)
	tx1.Signatures = []types.MultisigSignature{
		rawMultisigPacket(t, tx1, seedA, 20, 21),
		rawMultisigPacket(t, tx1, seedB, 0, 1),
	}
	// 第二笔只有成员B签，并且用的是next key
	tx2 := makeTx(2000)
	tx2.Signatures = []types.MultisigSignature{
		rawMultisigPacket(t, tx2, seedB, 1, 2),
	}

	require.NoError(t, mem.AddTransaction(tx1, TxInfo{}))
	require.NoError(t, mem.AddTransaction(tx2, TxInfo{}))

	// 成员A的大序号不能把tx1抬到tx2后面：tx2先上链会把成员B的
	// 密钥三元组回退到tx1里的旧序号。按归一化平均序号tx1在前
	reaped := mem.ReapForBlock(-1)
	require.Len(t, reaped, 2)
	assert.Equal(t, []string{tx1.ID, tx2.ID}, reaped.IDs())
}

func TestTxsAvailable(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)
	mem.EnableTxsAvailable()
	client := testClient(2)
	recipient := testClient(0).Address()

	select {
	case <-mem.TxsAvailable():
		t.Fatal("expected no notification on an empty mempool")
	default:
	}

	tx := preparedTransfer(t, client, recipient, 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))
	select {
	case <-mem.TxsAvailable():
	case <-time.After(time.Second):
		t.Fatal("expected a notification after the first transaction")
	}

	// 同一高度只通知一次
	tx2 := preparedTransfer(t, client, recipient, 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx2, TxInfo{}))
	select {
	case <-mem.TxsAvailable():
		t.Fatal("expected no second notification at the same height")
	default:
	}

	// Update之后还有pending交易的话再通知一次
	mem.Lock()
	require.NoError(t, mem.Update(1, types.Transactions{tx}))
	mem.Unlock()
	select {
	case <-mem.TxsAvailable():
	case <-time.After(time.Second):
		t.Fatal("expected a notification after update")
	}
}

func TestTransactionEvent(t *testing.T) {
	st := newTestStore(t, 2)
	mem := newTestMempool(t, st)

	evsw := events.NewEventSwitch()
	require.NoError(t, evsw.Start())
	defer func() { _ = evsw.Stop() }()
	mem.SetEventSwitch(evsw)

	txCh := make(chan events.EventData, 1)
	require.NoError(t, evsw.AddListenerForEvent("tester", types.EventTransaction,
		func(data events.EventData) {
			txCh <- data
		}))

	tx := preparedTransfer(t, testClient(2), testClient(0).Address(), 1000, 10000000)
	require.NoError(t, mem.AddTransaction(tx, TxInfo{}))

	select {
	case data := <-txCh:
		ev, ok := data.(*types.EventDataTransaction)
		require.True(t, ok)
		assert.Equal(t, tx.ID, ev.Transaction.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a transaction event")
	}
}
