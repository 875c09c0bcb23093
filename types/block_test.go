package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlock() *Block {
	tx := newTransferTx().Simplify()
	block := MakeBlock(1, 30000, "genesis-id", Transactions{tx})
	block.ForgerAddress = "ldpos55ff55ff55ff55ff55ff55ff55ff55ff55ff55ff"
	block.ForgingPublicKey = []byte("forging-key")
	block.NextForgingPublicKey = []byte("next-forging-key")
	block.NextForgingKeyIndex = 1
	block.ForgerSignature = []byte("forger-signature")
	block.ID = block.ComputeID()
	return block
}

// 测试区块id的确定性，且不受签名和已收集签名列表影响
func TestBlockIDDeterministic(t *testing.T) {
	b1 := newTestBlock()
	b2 := newTestBlock()
	assert.Equal(t, b1.ID, b2.ID)

	b2.ForgerSignature = []byte("different")
	b2.Signatures = []BlockSignature{{SignerAddress: "x", BlockID: b2.ID, Signature: []byte("s"),
		ForgingPublicKey: []byte("k"), NextForgingPublicKey: []byte("k2")}}
	assert.Equal(t, b1.ID, b2.ComputeID())

	b2.Timestamp = 60000
	assert.NotEqual(t, b1.ID, b2.ComputeID())
}

func TestBlockValidateBasic(t *testing.T) {
	block := newTestBlock()
	require.NoError(t, block.ValidateBasic())

	noSig := *block
	noSig.ForgerSignature = nil
	assert.Error(t, noSig.ValidateBasic())

	badCount := *block
	badCount.NumberOfTransactions = 7
	assert.Error(t, badCount.ValidateBasic())

	// 区块内的交易必须是简化形式
	fullTx := newTransferTx()
	withFull := MakeBlock(2, 60000, block.ID, Transactions{fullTx})
	withFull.ForgerAddress = block.ForgerAddress
	withFull.ForgingPublicKey = block.ForgingPublicKey
	withFull.NextForgingPublicKey = block.NextForgingPublicKey
	withFull.ForgerSignature = []byte("sig")
	withFull.ID = withFull.ComputeID()
	assert.Error(t, withFull.ValidateBasic())
}

func TestBlockSimplify(t *testing.T) {
	block := newTestBlock()
	simple := block.Simplify()
	assert.Equal(t, block.ID, simple.ID)
	assert.Equal(t, block.Height, simple.Height)
	assert.Equal(t, block.Timestamp, simple.Timestamp)
	assert.EqualValues(t, 1, simple.NumberOfTransactions)
}

// 测试创世区块：高度0，空交易，id确定
func TestGenesisBlock(t *testing.T) {
	genDoc := &GenesisDoc{
		NetworkSymbol: "ldpos",
		Timestamp:     0,
		Accounts: []GenesisAccount{
			{Address: "ldpos00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa", Balance: NewAmount(200)},
		},
	}
	require.NoError(t, genDoc.ValidateAndComplete())

	g1 := genDoc.GenesisBlock()
	g2 := genDoc.GenesisBlock()
	assert.EqualValues(t, 0, g1.Height)
	assert.Empty(t, g1.PreviousBlockID)
	assert.Equal(t, g1.ID, g2.ID)
}

func TestGenesisDocValidate(t *testing.T) {
	genDoc := &GenesisDoc{
		NetworkSymbol: "ldpos",
		Accounts: []GenesisAccount{
			{Address: "bad-address", Balance: NewAmount(1)},
		},
	}
	assert.Error(t, genDoc.ValidateAndComplete())

	genDoc = &GenesisDoc{NetworkSymbol: "ldpos"}
	assert.Error(t, genDoc.ValidateAndComplete(), "没有账户的genesis非法")

	genDoc = &GenesisDoc{
		NetworkSymbol: "ldpos",
		Accounts: []GenesisAccount{
			{Address: "ldpos00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa", Balance: NewAmount(200)},
			{Address: "ldpos00aa00aa00aa00aa00aa00aa00aa00aa00aa00aa", Balance: NewAmount(1)},
		},
	}
	assert.Error(t, genDoc.ValidateAndComplete(), "重复地址非法")
}

func TestBlockSignatureValidateBasic(t *testing.T) {
	sig := &BlockSignature{
		SignerAddress:        "ldpos66aa66aa66aa66aa66aa66aa66aa66aa66aa66aa",
		ForgingPublicKey:     []byte("k"),
		NextForgingPublicKey: []byte("k-next"),
		NextForgingKeyIndex:  3,
		BlockID:              "some-block",
		Signature:            []byte("sig"),
	}
	require.NoError(t, sig.ValidateBasic())

	noBlock := *sig
	noBlock.BlockID = ""
	assert.Error(t, noBlock.ValidateBasic())
}
