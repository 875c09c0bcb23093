package types

import (
	"bytes"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

type AccountType string

const (
	AccountTypeSig      = AccountType("sig")
	AccountTypeMultisig = AccountType("multisig")
)

// Account 账本中的账户记录
// 密钥采用逐次演化方案：每个密钥链(sig/multisig/forging)保存当前公钥、
// 下一个公钥和下一个密钥序号，签名时序号前进一格
type Account struct {
	Address string      `json:"address"`
	Type    AccountType `json:"type"`
	Balance *Amount     `json:"balance"`

	// sig密钥链，首次使用前为空，依靠地址推导规则认证
	SigPublicKey     tmbytes.HexBytes `json:"sigPublicKey,omitempty"`
	NextSigPublicKey tmbytes.HexBytes `json:"nextSigPublicKey,omitempty"`
	NextSigKeyIndex  uint64           `json:"nextSigKeyIndex"`

	// multisig密钥链，仅当该账户作为多签钱包的成员签名时使用
	MultisigPublicKey     tmbytes.HexBytes `json:"multisigPublicKey,omitempty"`
	NextMultisigPublicKey tmbytes.HexBytes `json:"nextMultisigPublicKey,omitempty"`
	NextMultisigKeyIndex  uint64           `json:"nextMultisigKeyIndex"`

	// forging密钥链，仅委托人使用
	ForgingPublicKey     tmbytes.HexBytes `json:"forgingPublicKey,omitempty"`
	NextForgingPublicKey tmbytes.HexBytes `json:"nextForgingPublicKey,omitempty"`
	NextForgingKeyIndex  uint64           `json:"nextForgingKeyIndex"`

	// 多签钱包的成员与签名门限，仅multisig类型有效
	MemberAddresses        []string `json:"memberAddresses,omitempty"`
	RequiredSignatureCount uint32   `json:"requiredSignatureCount,omitempty"`

	// 最后修改该记录的区块高度，用于重复处理时的幂等保护
	UpdateHeight uint64 `json:"updateHeight"`
}

func NewAccount(address string) *Account {
	return &Account{
		Address: address,
		Type:    AccountTypeSig,
		Balance: ZeroAmount(),
	}
}

func (acc *Account) IsMultisig() bool {
	return acc.Type == AccountTypeMultisig
}

// HasSigKeys 账户的sig密钥链是否已经启用
func (acc *Account) HasSigKeys() bool {
	return len(acc.SigPublicKey) > 0
}

func (acc *Account) HasMultisigKeys() bool {
	return len(acc.MultisigPublicKey) > 0
}

func (acc *Account) HasForgingKeys() bool {
	return len(acc.ForgingPublicKey) > 0
}

// MatchesSigKey 判断公钥命中当前sig公钥还是下一个sig公钥
func (acc *Account) MatchesSigKey(pubKey []byte) (current, next bool) {
	current = acc.HasSigKeys() && bytes.Equal(acc.SigPublicKey, pubKey)
	next = len(acc.NextSigPublicKey) > 0 && bytes.Equal(acc.NextSigPublicKey, pubKey)
	return
}

func (acc *Account) MatchesMultisigKey(pubKey []byte) (current, next bool) {
	current = acc.HasMultisigKeys() && bytes.Equal(acc.MultisigPublicKey, pubKey)
	next = len(acc.NextMultisigPublicKey) > 0 && bytes.Equal(acc.NextMultisigPublicKey, pubKey)
	return
}

func (acc *Account) MatchesForgingKey(pubKey []byte) (current, next bool) {
	current = acc.HasForgingKeys() && bytes.Equal(acc.ForgingPublicKey, pubKey)
	next = len(acc.NextForgingPublicKey) > 0 && bytes.Equal(acc.NextForgingPublicKey, pubKey)
	return
}

func (acc *Account) Copy() *Account {
	if acc == nil {
		return nil
	}
	cp := *acc
	cp.Balance = acc.Balance.Clone()
	if acc.MemberAddresses != nil {
		cp.MemberAddresses = append([]string(nil), acc.MemberAddresses...)
	}
	return &cp
}
