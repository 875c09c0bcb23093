package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

// Block 账本的基本单位，由slot轮转到的委托人锻造
// 区块内的交易一律为简化形式（签名hash替代签名）
type Block struct {
	ID              string `json:"id,omitempty"`
	Height          uint64 `json:"height"`
	Timestamp       int64  `json:"timestamp"` // ms，必须对齐slot边界
	PreviousBlockID string `json:"previousBlockId,omitempty"`

	ForgerAddress string `json:"forgerAddress,omitempty"`

	// 锻造者forging密钥链的演化三元组
	ForgingPublicKey     tmbytes.HexBytes `json:"forgingPublicKey,omitempty"`
	NextForgingPublicKey tmbytes.HexBytes `json:"nextForgingPublicKey,omitempty"`
	NextForgingKeyIndex  uint64           `json:"nextForgingKeyIndex,omitempty"`

	TransactionRoot      tmbytes.HexBytes `json:"transactionRoot,omitempty"`
	NumberOfTransactions uint32           `json:"numberOfTransactions"`
	Transactions         Transactions     `json:"transactions"`

	ForgerSignature tmbytes.HexBytes `json:"forgerSignature,omitempty"`

	// 其他活跃委托人的签名，达到法定数后随区块持久化
	Signatures []BlockSignature `json:"signatures,omitempty"`
}

// MakeBlock 返回一个未签名的区块，header的hash字段在签名时填补
func MakeBlock(height uint64, timestamp int64, previousBlockID string, txs Transactions) *Block {
	block := &Block{
		Height:          height,
		Timestamp:       timestamp,
		PreviousBlockID: previousBlockID,
		Transactions:    txs,
	}
	block.fillHeader()
	return block
}

// 填补交易root和计数
func (b *Block) fillHeader() {
	if b.TransactionRoot == nil {
		b.TransactionRoot = b.Transactions.MerkleRoot()
	}
	if b.NumberOfTransactions == 0 {
		b.NumberOfTransactions = uint32(len(b.Transactions))
	}
}

// SigningBytes 锻造者签名和区块id的规范字节串：
// canonical json，剔除id、锻造者签名和收集到的委托人签名
func (b *Block) SigningBytes() []byte {
	cp := *b
	cp.fillHeader()
	cp.ID = ""
	cp.ForgerSignature = nil
	cp.Signatures = nil

	bz, err := tmjson.Marshal(&cp)
	if err != nil {
		panic(err)
	}
	return bz
}

func (b *Block) ComputeID() string {
	return hex.EncodeToString(tmhash.Sum(b.SigningBytes()))
}

// ValidateBasic 检验一个block是否有明确的结构错误
func (b *Block) ValidateBasic() error {
	if b.ID == "" {
		return errors.New("block has no id")
	}
	if b.Height == 0 {
		return errors.New("block has zero height")
	}
	if b.Timestamp < 0 {
		return errors.New("block has negative timestamp")
	}
	if b.ForgerAddress == "" {
		return errors.New("block has no forger address")
	}
	if len(b.ForgerSignature) == 0 {
		return errors.New("block has no forger signature")
	}
	if len(b.ForgingPublicKey) == 0 || len(b.NextForgingPublicKey) == 0 {
		return errors.New("block has missing forging keys")
	}
	if int(b.NumberOfTransactions) != len(b.Transactions) {
		return fmt.Errorf("block transaction count mismatch: header %d, body %d",
			b.NumberOfTransactions, len(b.Transactions))
	}
	for i, tx := range b.Transactions {
		if err := tx.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid transaction #%d: %w", i, err)
		}
		if tx.ID == "" {
			return fmt.Errorf("transaction #%d has no id", i)
		}
		// 区块内只允许简化形式
		if len(tx.SenderSignature) > 0 {
			return fmt.Errorf("transaction #%d carries a full signature", i)
		}
	}
	return nil
}

// WithoutSignatures 返回剔除委托人签名列表的浅拷贝，
// 供不需要签名的查询使用
func (b *Block) WithoutSignatures() *Block {
	cp := *b
	cp.Signatures = nil
	return &cp
}

// Simplify 事件和轻查询使用的区块摘要
func (b *Block) Simplify() *SimplifiedBlock {
	return &SimplifiedBlock{
		ID:                   b.ID,
		Height:               b.Height,
		Timestamp:            b.Timestamp,
		ForgerAddress:        b.ForgerAddress,
		NumberOfTransactions: b.NumberOfTransactions,
	}
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{%d %v txs=%d %v}", b.Height, b.Timestamp, len(b.Transactions), b.ID)
}

type SimplifiedBlock struct {
	ID                   string `json:"id"`
	Height               uint64 `json:"height"`
	Timestamp            int64  `json:"timestamp"`
	ForgerAddress        string `json:"forgerAddress,omitempty"`
	NumberOfTransactions uint32 `json:"numberOfTransactions"`
}

// BlockSignature 活跃委托人对候选区块的签名包，
// 携带签名者自己forging密钥链的演化三元组
type BlockSignature struct {
	SignerAddress        string           `json:"signerAddress"`
	ForgingPublicKey     tmbytes.HexBytes `json:"forgingPublicKey"`
	NextForgingPublicKey tmbytes.HexBytes `json:"nextForgingPublicKey"`
	NextForgingKeyIndex  uint64           `json:"nextForgingKeyIndex"`
	BlockID              string           `json:"blockId"`
	Signature            tmbytes.HexBytes `json:"signature,omitempty"`
}

// SigningBytes 签名包本体剔除签名后的规范字节串，blockId绑定目标区块
func (bs *BlockSignature) SigningBytes() []byte {
	cp := *bs
	cp.Signature = nil

	bz, err := tmjson.Marshal(&cp)
	if err != nil {
		panic(err)
	}
	return bz
}

func (bs *BlockSignature) ValidateBasic() error {
	if bs.SignerAddress == "" {
		return errors.New("block signature has no signer address")
	}
	if bs.BlockID == "" {
		return errors.New("block signature has no block id")
	}
	if len(bs.ForgingPublicKey) == 0 || len(bs.NextForgingPublicKey) == 0 {
		return errors.New("block signature has missing forging keys")
	}
	if len(bs.Signature) == 0 {
		return errors.New("block signature has no signature")
	}
	return nil
}
