package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

type TransactionType string

const (
	TxTypeTransfer                = TransactionType("transfer")
	TxTypeVote                    = TransactionType("vote")
	TxTypeUnvote                  = TransactionType("unvote")
	TxTypeRegisterSigDetails      = TransactionType("registerSigDetails")
	TxTypeRegisterMultisigDetails = TransactionType("registerMultisigDetails")
	TxTypeRegisterForgingDetails  = TransactionType("registerForgingDetails")
	TxTypeRegisterMultisigWallet  = TransactionType("registerMultisigWallet")
)

func ValidTransactionType(t TransactionType) bool {
	switch t {
	case TxTypeTransfer, TxTypeVote, TxTypeUnvote,
		TxTypeRegisterSigDetails, TxTypeRegisterMultisigDetails,
		TxTypeRegisterForgingDetails, TxTypeRegisterMultisigWallet:
		return true
	}
	return false
}

// RegistrationType 注册类交易会轮换账户的某条密钥链，
// 在mempool中要求发送者stream为空后才可入队
func (t TransactionType) RegistrationType() bool {
	switch t {
	case TxTypeRegisterSigDetails, TxTypeRegisterMultisigDetails,
		TxTypeRegisterForgingDetails, TxTypeRegisterMultisigWallet:
		return true
	}
	return false
}

// MultisigSignature 多签交易中单个成员的签名包
// 成员各自带着自己multisig密钥链的演化三元组
type MultisigSignature struct {
	SignerAddress         string           `json:"signerAddress"`
	MultisigPublicKey     tmbytes.HexBytes `json:"multisigPublicKey"`
	NextMultisigPublicKey tmbytes.HexBytes `json:"nextMultisigPublicKey"`
	NextMultisigKeyIndex  uint64           `json:"nextMultisigKeyIndex"`

	// 完整形式携带Signature；简化形式只保留SignatureHash
	Signature     tmbytes.HexBytes `json:"signature,omitempty"`
	SignatureHash string           `json:"signatureHash,omitempty"`
}

func (ms *MultisigSignature) Simplify() MultisigSignature {
	cp := *ms
	cp.SignatureHash = SignatureHash(ms.Signature)
	cp.Signature = nil
	return cp
}

// Transaction 链上交易。一个结构体同时承载完整形式和简化形式：
// 完整形式带签名（mempool、gossip使用），简化形式以签名hash替代签名
// （区块内、持久化使用）
type Transaction struct {
	ID   string          `json:"id,omitempty"`
	Type TransactionType `json:"type"`

	SenderAddress string  `json:"senderAddress"`
	Fee           *Amount `json:"fee"`
	Timestamp     int64   `json:"timestamp"`
	Message       string  `json:"message,omitempty"`

	// transfer
	RecipientAddress string  `json:"recipientAddress,omitempty"`
	Amount           *Amount `json:"amount,omitempty"`

	// vote / unvote
	DelegateAddress string `json:"delegateAddress,omitempty"`

	// registerSigDetails
	NewSigPublicKey     tmbytes.HexBytes `json:"newSigPublicKey,omitempty"`
	NewNextSigPublicKey tmbytes.HexBytes `json:"newNextSigPublicKey,omitempty"`
	NewNextSigKeyIndex  uint64           `json:"newNextSigKeyIndex,omitempty"`

	// registerMultisigDetails
	NewMultisigPublicKey     tmbytes.HexBytes `json:"newMultisigPublicKey,omitempty"`
	NewNextMultisigPublicKey tmbytes.HexBytes `json:"newNextMultisigPublicKey,omitempty"`
	NewNextMultisigKeyIndex  uint64           `json:"newNextMultisigKeyIndex,omitempty"`

	// registerForgingDetails
	NewForgingPublicKey     tmbytes.HexBytes `json:"newForgingPublicKey,omitempty"`
	NewNextForgingPublicKey tmbytes.HexBytes `json:"newNextForgingPublicKey,omitempty"`
	NewNextForgingKeyIndex  uint64           `json:"newNextForgingKeyIndex,omitempty"`

	// registerMultisigWallet
	MemberAddresses        []string `json:"memberAddresses,omitempty"`
	RequiredSignatureCount uint32   `json:"requiredSignatureCount,omitempty"`

	// sig发送者的密钥演化三元组和签名
	SigPublicKey     tmbytes.HexBytes `json:"sigPublicKey,omitempty"`
	NextSigPublicKey tmbytes.HexBytes `json:"nextSigPublicKey,omitempty"`
	NextSigKeyIndex  uint64           `json:"nextSigKeyIndex,omitempty"`

	SenderSignature     tmbytes.HexBytes `json:"senderSignature,omitempty"`
	SenderSignatureHash string           `json:"senderSignatureHash,omitempty"`

	// multisig发送者的成员签名包
	Signatures []MultisigSignature `json:"signatures,omitempty"`
}

// SignatureHash 简化形式中替代签名的hash：hex(sha256(signature))
func SignatureHash(signature []byte) string {
	return hex.EncodeToString(tmhash.Sum(signature))
}

// SigningBytes 签名和id计算的规范字节串：
// canonical json，剔除id、签名和签名hash字段。
// 多签成员对同一字节串签名，签名包本身不参与
func (tx *Transaction) SigningBytes() []byte {
	cp := *tx
	cp.ID = ""
	cp.SenderSignature = nil
	cp.SenderSignatureHash = ""
	cp.Signatures = nil

	bz, err := tmjson.Marshal(&cp)
	if err != nil {
		panic(err)
	}
	return bz
}

func (tx *Transaction) ComputeID() string {
	return hex.EncodeToString(tmhash.Sum(tx.SigningBytes()))
}

// Simplify 返回区块内形式：签名替换为hash，其余字段不变
func (tx *Transaction) Simplify() *Transaction {
	cp := *tx
	if len(tx.SenderSignature) > 0 {
		cp.SenderSignatureHash = SignatureHash(tx.SenderSignature)
		cp.SenderSignature = nil
	}
	if len(tx.Signatures) > 0 {
		sigs := make([]MultisigSignature, len(tx.Signatures))
		for i := range tx.Signatures {
			sigs[i] = tx.Signatures[i].Simplify()
		}
		cp.Signatures = sigs
	}
	return &cp
}

// TotalSpend 发送者被扣除的总额：transfer为amount+fee，其余类型仅fee
func (tx *Transaction) TotalSpend() *Amount {
	if tx.Type == TxTypeTransfer && tx.Amount != nil {
		return tx.Amount.Add(tx.Fee)
	}
	return tx.Fee.Clone()
}

// UsedNextSigKey 交易是否用发送者的next key签名（相对给定账户快照）
func (tx *Transaction) UsedNextSigKey(acc *Account) bool {
	_, next := acc.MatchesSigKey(tx.SigPublicKey)
	return next
}

// ValidateBasic 与配置无关的结构检查，字段长度等
// 与配置相关的限制由authenticator负责
func (tx *Transaction) ValidateBasic() error {
	if !ValidTransactionType(tx.Type) {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	if tx.SenderAddress == "" {
		return errors.New("transaction has no sender address")
	}
	if tx.Fee == nil || tx.Fee.Sign() < 0 {
		return errors.New("transaction has missing or negative fee")
	}
	if tx.Timestamp < 0 {
		return errors.New("transaction has negative timestamp")
	}
	if tx.Amount != nil && tx.Amount.Sign() < 0 {
		return errors.New("transaction has negative amount")
	}

	switch tx.Type {
	case TxTypeTransfer:
		if tx.RecipientAddress == "" {
			return errors.New("transfer has no recipient address")
		}
		if tx.Amount == nil {
			return errors.New("transfer has no amount")
		}
	case TxTypeVote, TxTypeUnvote:
		if tx.DelegateAddress == "" {
			return fmt.Errorf("%v has no delegate address", tx.Type)
		}
	case TxTypeRegisterSigDetails:
		if len(tx.NewSigPublicKey) == 0 || len(tx.NewNextSigPublicKey) == 0 {
			return errors.New("registerSigDetails has missing keys")
		}
	case TxTypeRegisterMultisigDetails:
		if len(tx.NewMultisigPublicKey) == 0 || len(tx.NewNextMultisigPublicKey) == 0 {
			return errors.New("registerMultisigDetails has missing keys")
		}
	case TxTypeRegisterForgingDetails:
		if len(tx.NewForgingPublicKey) == 0 || len(tx.NewNextForgingPublicKey) == 0 {
			return errors.New("registerForgingDetails has missing keys")
		}
	case TxTypeRegisterMultisigWallet:
		if len(tx.MemberAddresses) == 0 {
			return errors.New("registerMultisigWallet has no members")
		}
		if tx.RequiredSignatureCount == 0 {
			return errors.New("registerMultisigWallet has zero required signature count")
		}
		if int(tx.RequiredSignatureCount) > len(tx.MemberAddresses) {
			return errors.New("registerMultisigWallet requires more signatures than members")
		}
	}

	return nil
}

func (tx *Transaction) Copy() *Transaction {
	cp := *tx
	if tx.Amount != nil {
		cp.Amount = tx.Amount.Clone()
	}
	if tx.Fee != nil {
		cp.Fee = tx.Fee.Clone()
	}
	if tx.MemberAddresses != nil {
		cp.MemberAddresses = append([]string(nil), tx.MemberAddresses...)
	}
	if tx.Signatures != nil {
		cp.Signatures = append([]MultisigSignature(nil), tx.Signatures...)
	}
	return &cp
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Tx{%v %v %v}", tx.Type, tx.SenderAddress, tx.ID)
}

// ===== tx array =====

type Transactions []*Transaction

// MerkleRoot 返回交易id形成的merkle tree的根value
func (txs Transactions) MerkleRoot() tmbytes.HexBytes {
	idBzs := make([][]byte, len(txs))
	for i, tx := range txs {
		bz, err := hex.DecodeString(tx.ID)
		if err != nil {
			bz = []byte(tx.ID)
		}
		idBzs[i] = bz
	}
	return merkle.HashFromByteSlices(idBzs)
}

func (txs Transactions) IDs() []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}

func (txs Transactions) TotalFees() *Amount {
	total := ZeroAmount()
	for _, tx := range txs {
		total = total.Add(tx.Fee)
	}
	return total
}
