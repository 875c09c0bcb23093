package cryptoclient

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ldpos_chain/types"
)

func newTestClient() *WalletClient {
	return NewClient("ldpos", "test-seed")
}

// 测试交易签发后能通过完整验证，且首笔交易满足地址推导规则
func TestPrepareAndVerifyTransaction(t *testing.T) {
	c := newTestClient()

	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		RecipientAddress: "ldpos11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb",
		Amount:           types.NewAmount(100),
		Fee:              types.NewAmount(10),
		Timestamp:        30000,
	}
	require.NoError(t, c.PrepareTransaction(tx))

	assert.Equal(t, c.Address(), tx.SenderAddress)
	assert.EqualValues(t, 1, tx.NextSigKeyIndex)
	assert.EqualValues(t, 1, c.SigKeyIndex())
	require.NoError(t, VerifyTransaction(tx))

	// 首次使用：公钥hex前40位等于地址主体
	assert.True(t, types.AddressMatchesPublicKey("ldpos", tx.SenderAddress, tx.SigPublicKey))

	// 篡改金额后验证失败
	tx.Amount = types.NewAmount(101)
	assert.Error(t, VerifyTransactionID(tx))
	assert.Error(t, VerifyTransaction(tx))
}

// 测试签名序号逐笔前进，三元组对应正确的派生公钥
func TestKeyEvolution(t *testing.T) {
	c := newTestClient()

	for i := 0; i < 3; i++ {
		tx := &types.Transaction{
			Type:             types.TxTypeTransfer,
			RecipientAddress: "ldpos11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb",
			Amount:           types.NewAmount(1),
			Fee:              types.NewAmount(1),
			Timestamp:        int64(30000 * (i + 1)),
		}
		require.NoError(t, c.PrepareTransaction(tx))

		assert.EqualValues(t, i+1, tx.NextSigKeyIndex)
		assert.EqualValues(t, PublicKeyAt("test-seed", KeyChainSig, uint64(i)), []byte(tx.SigPublicKey))
		assert.EqualValues(t, PublicKeyAt("test-seed", KeyChainSig, uint64(i+1)), []byte(tx.NextSigPublicKey))
		require.NoError(t, VerifyTransaction(tx))
	}
}

func TestPrepareAndVerifyBlock(t *testing.T) {
	c := newTestClient()

	block := types.MakeBlock(1, 30000, "prev-id", types.Transactions{})
	require.NoError(t, c.PrepareBlock(block))

	assert.Equal(t, c.Address(), block.ForgerAddress)
	assert.EqualValues(t, 1, block.NextForgingKeyIndex)
	require.NoError(t, VerifyBlock(block))

	// 其他委托人签署该区块
	signer := NewClient("ldpos", "signer-seed")
	blockSig, err := signer.SignBlock(block)
	require.NoError(t, err)
	assert.Equal(t, block.ID, blockSig.BlockID)
	require.NoError(t, VerifyBlockSignature(block, blockSig))

	// 签名包指向其他区块时拒绝
	other := types.MakeBlock(2, 60000, block.ID, types.Transactions{})
	require.NoError(t, c.PrepareBlock(other))
	assert.Error(t, VerifyBlockSignature(other, blockSig))
}

// 测试多签：钱包交易只有id，各成员的签名包独立验证
func TestMultisigSignatures(t *testing.T) {
	m1 := NewClient("ldpos", "member-1")
	m2 := NewClient("ldpos", "member-2")

	tx := &types.Transaction{
		Type:             types.TxTypeTransfer,
		SenderAddress:    "ldpos22cc22cc22cc22cc22cc22cc22cc22cc22cc22cc",
		RecipientAddress: "ldpos11bb11bb11bb11bb11bb11bb11bb11bb11bb11bb",
		Amount:           types.NewAmount(5),
		Fee:              types.NewAmount(1),
		Timestamp:        30000,
	}
	require.NoError(t, m1.PrepareMultisigTransaction(tx))

	p1, err := m1.SignMultisigTransaction(tx)
	require.NoError(t, err)
	p2, err := m2.SignMultisigTransaction(tx)
	require.NoError(t, err)
	tx.Signatures = []types.MultisigSignature{*p1, *p2}

	require.NoError(t, VerifyTransactionID(tx))
	require.NoError(t, VerifyMultisigTransactionSignature(tx, p1))
	require.NoError(t, VerifyMultisigTransactionSignature(tx, p2))
	assert.EqualValues(t, 1, m1.MultisigKeyIndex())

	// 用m1的包冒充m2失败
	forged := *p1
	forged.SignerAddress = m2.Address()
	assert.Error(t, VerifyMultisigTransactionSignature(tx, &types.MultisigSignature{
		SignerAddress:         forged.SignerAddress,
		MultisigPublicKey:     p2.MultisigPublicKey,
		NextMultisigPublicKey: p2.NextMultisigPublicKey,
		NextMultisigKeyIndex:  p2.NextMultisigKeyIndex,
		Signature:             p1.Signature,
	}))
}

// 测试forging序号先落盘再使用：锻造后重新加载钱包，序号已前进
func TestForgingKeyIndexPersistence(t *testing.T) {
	dir, err := ioutil.TempDir("", "cryptoclient_test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	keyFile := filepath.Join(dir, "wallet_key.json")
	stateFile := filepath.Join(dir, "wallet_state.json")

	fw := LoadOrGenFileWallet("ldpos", keyFile, stateFile, "")
	c := fw.Client()

	block := types.MakeBlock(1, 30000, "prev-id", types.Transactions{})
	require.NoError(t, c.PrepareBlock(block))
	require.EqualValues(t, 1, c.ForgingKeyIndex())

	reloaded := LoadFileWallet(keyFile, stateFile, "")
	assert.EqualValues(t, 1, reloaded.State.ForgingKeyIndex)
	assert.Equal(t, fw.GetAddress(), reloaded.GetAddress())
}

func TestSyncKeyIndex(t *testing.T) {
	c := newTestClient()

	acc := types.NewAccount(c.Address())
	acc.NextForgingKeyIndex = 7

	advanced, err := c.SyncKeyIndex(KeyChainForging, acc)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.EqualValues(t, 7, c.ForgingKeyIndex())

	// 链上序号不超过本地时不动
	advanced, err = c.SyncKeyIndex(KeyChainForging, acc)
	require.NoError(t, err)
	assert.False(t, advanced)
}

// 测试口令加解密往返和错误口令
func TestPassphraseRoundTrip(t *testing.T) {
	encrypted, err := EncryptPassphrase("my wallet seed", "hunter2")
	require.NoError(t, err)

	plain, err := DecryptPassphrase(encrypted, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "my wallet seed", plain)

	_, err = DecryptPassphrase(encrypted, "wrong-password")
	require.Error(t, err)
	var actionErr types.InvalidActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, types.ErrNameInvalidPassphrase, actionErr.Name)

	_, err = DecryptPassphrase(encrypted, "")
	assert.Error(t, err)
}
