package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

const (
	testSymbol = "ldpos"
	testNow    = int64(90000000)
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(testSymbol, config.DefaultTransactionConfig())
}

// newFundedAccount 返回与client的0号key对应的账户，
// withKeys决定账户是否已记录sig密钥（否则走首次使用的地址派生规则）
func newFundedAccount(client *cryptoclient.WalletClient, seed string, withKeys bool) *types.Account {
	acc := types.NewAccount(client.Address())
	acc.Balance = types.NewAmount(1000000000000)
	if withKeys {
		acc.SigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 0)
		acc.NextSigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 1)
		acc.NextSigKeyIndex = 1
	}
	return acc
}

func preparedTransfer(t *testing.T, client *cryptoclient.WalletClient, recipient string) *types.Transaction {
	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: recipient,
		Amount:           types.NewAmount(5000),
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, client.PrepareTransaction(tx))
	return tx
}

func TestVerifyTransactionFull(t *testing.T) {
	a := newTestAuthenticator()
	seed := "auth-test-sender"
	client := cryptoclient.NewClient(testSymbol, seed)
	recipient := cryptoclient.NewClient(testSymbol, "auth-test-recipient").Address()

	sender := newFundedAccount(client, seed, true)
	tx := preparedTransfer(t, client, recipient)
	require.NoError(t, a.VerifyTransaction(sender, nil, tx, testNow))

	// 未来时间戳
	err := a.VerifyTransaction(sender, nil, tx, tx.Timestamp-1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "future")

	// 手续费低于最低值
	cheap := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: recipient,
		Amount:           types.NewAmount(5000),
		Fee:              types.NewAmount(1),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, client.PrepareTransaction(cheap))
	err = a.VerifyTransaction(sender, nil, cheap, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum")

	// 余额不足
	poor := sender.Copy()
	poor.Balance = types.NewAmount(10)
	err = a.VerifyTransaction(poor, nil, tx, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "balance")

	// 错误网络前缀的收款地址
	wrongNet := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: "clsk" + recipient[len(testSymbol):],
		Amount:           types.NewAmount(5000),
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, client.PrepareTransaction(wrongNet))
	err = a.VerifyTransaction(sender, nil, wrongNet, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network")

	// message超长
	chatty := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: recipient,
		Amount:           types.NewAmount(5000),
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
		Message:          strings.Repeat("x", 257),
	}
	require.NoError(t, client.PrepareTransaction(chatty))
	err = a.VerifyTransaction(sender, nil, chatty, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message")

	// amount+fee超出可花费位数上限，schema先于余额检查报错
	huge, perr := types.ParseAmount("10000000000000000000000000")
	require.NoError(t, perr)
	bloated := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: recipient,
		Amount:           huge,
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, client.PrepareTransaction(bloated))
	err = a.VerifyTransaction(sender, nil, bloated, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digits")
}

func TestSigKeyContinuity(t *testing.T) {
	a := newTestAuthenticator()
	seed := "auth-continuity"
	client := cryptoclient.NewClient(testSymbol, seed)
	recipient := cryptoclient.NewClient(testSymbol, "auth-continuity-recipient").Address()

	// 账户未记录密钥时走地址派生规则
	fresh := newFundedAccount(client, seed, false)
	tx := preparedTransfer(t, client, recipient)
	require.NoError(t, a.VerifyTransaction(fresh, nil, tx, testNow))

	// 账户记录了密钥，0号key既是当前key
	recorded := newFundedAccount(client, seed, true)
	require.NoError(t, a.VerifyTransaction(recorded, nil, tx, testNow))

	// 账户的链已推进到2号key，0号key签的交易不再连续
	advanced := newFundedAccount(client, seed, true)
	advanced.SigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 2)
	advanced.NextSigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainSig, 3)
	advanced.NextSigKeyIndex = 3
	err := a.VerifyTransaction(advanced, nil, tx, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither the current nor the next key")

	// 地址派生规则下，他人的key对不上地址
	stranger := cryptoclient.NewClient(testSymbol, "auth-stranger")
	theirTx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		SenderAddress:    stranger.Address(),
		RecipientAddress: recipient,
		Amount:           types.NewAmount(5000),
		Fee:              types.NewAmount(10000000),
		Timestamp:        testNow - 1000,
	}
	require.NoError(t, stranger.PrepareTransaction(theirTx))
	theirTx.SenderAddress = fresh.Address
	theirTx.ID = theirTx.ComputeID()
	err = a.VerifyTransaction(fresh, nil, theirTx, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not derive address")
}

func TestVerifyMultisigTransaction(t *testing.T) {
	a := newTestAuthenticator()

	// SignMultisigTransaction每次都会推进成员的密钥序号，
	// 每个场景都用新client从0号key签名
	newAlice := func() *cryptoclient.WalletClient { return cryptoclient.NewClient(testSymbol, "auth-member-alice") }
	newBob := func() *cryptoclient.WalletClient { return cryptoclient.NewClient(testSymbol, "auth-member-bob") }
	carol := cryptoclient.NewClient(testSymbol, "auth-outsider-carol")
	recipient := cryptoclient.NewClient(testSymbol, "auth-multisig-recipient").Address()

	wallet := types.NewAccount(cryptoclient.NewClient(testSymbol, "auth-wallet").Address())
	wallet.Type = types.AccountTypeMultisig
	wallet.Balance = types.NewAmount(1000000000000)
	wallet.RequiredSignatureCount = 2
	wallet.MemberAddresses = []string{newAlice().Address(), newBob().Address()}

	memberAccount := func(c *cryptoclient.WalletClient, seed string) *types.Account {
		acc := types.NewAccount(c.Address())
		acc.Balance = types.NewAmount(0)
		acc.MultisigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainMultisig, 0)
		acc.NextMultisigPublicKey = cryptoclient.PublicKeyAt(seed, cryptoclient.KeyChainMultisig, 1)
		acc.NextMultisigKeyIndex = 1
		return acc
	}
	members := map[string]*types.Account{
		newAlice().Address(): memberAccount(newAlice(), "auth-member-alice"),
		newBob().Address():   memberAccount(newBob(), "auth-member-bob"),
	}

	prepare := func(fee int64) *types.Transaction {
		tx := &types.Transaction{
			Type:             types.TxTypeTransfer,
			SenderAddress:    wallet.Address,
			RecipientAddress: recipient,
			Amount:           types.NewAmount(5000),
			Fee:              types.NewAmount(fee),
			Timestamp:        testNow - 1000,
		}
		require.NoError(t, newAlice().PrepareMultisigTransaction(tx))
		return tx
	}
	sign := func(tx *types.Transaction, signers ...*cryptoclient.WalletClient) {
		for _, signer := range signers {
			packet, err := signer.SignMultisigTransaction(tx)
			require.NoError(t, err)
			tx.Signatures = append(tx.Signatures, *packet)
		}
	}

	// 最低手续费要叠加每成员的multisig交易附加费
	full := prepare(10000000 + 2*500000)
	sign(full, newAlice(), newBob())
	require.NoError(t, a.VerifyTransaction(wallet, members, full, testNow))

	short := prepare(10000000)
	sign(short, newAlice(), newBob())
	err := a.VerifyTransaction(wallet, members, short, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minimum")

	// 签名数不足requiredSignatureCount
	lone := prepare(11000000)
	sign(lone, newAlice())
	err = a.VerifyTransaction(wallet, members, lone, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires 2")

	// 同一成员重复签名不计两次
	doubled := prepare(11000000)
	sign(doubled, newAlice(), newAlice())
	err = a.VerifyTransaction(wallet, members, doubled, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate signer")

	// 非成员签名被拒绝
	outsider := prepare(11000000)
	sign(outsider, newAlice(), carol)
	err = a.VerifyTransaction(wallet, members, outsider, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member")
}

func TestVerifySimplifiedTransaction(t *testing.T) {
	a := newTestAuthenticator()
	seed := "auth-simplified"
	client := cryptoclient.NewClient(testSymbol, seed)
	recipient := cryptoclient.NewClient(testSymbol, "auth-simplified-recipient").Address()

	sender := newFundedAccount(client, seed, true)
	full := preparedTransfer(t, client, recipient)
	simplified := full.Simplify()

	require.NoError(t, a.VerifySimplifiedTransaction(sender, nil, simplified, testNow))

	// 篡改金额，id对不上
	tampered := simplified.Copy()
	tampered.Amount = types.NewAmount(9999999)
	err := a.VerifySimplifiedTransaction(sender, nil, tampered, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id mismatch")

	// 丢失签名hash
	stripped := simplified.Copy()
	stripped.SenderSignatureHash = ""
	err = a.VerifySimplifiedTransaction(sender, nil, stripped, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature hash")
}
