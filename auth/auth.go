package auth

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"

	"ldpos_chain/config"
	"ldpos_chain/cryptoclient"
	"ldpos_chain/types"
)

// Authenticator 对交易做无I/O的schema、认证和授权检查。
// 账户快照由调用方提供：mempool送入扣减过余额的内存快照，
// executor送入区块验证时的分组快照，两边的串行语义各自维护
type Authenticator struct {
	networkSymbol string
	rules         *config.TransactionConfig
}

func NewAuthenticator(networkSymbol string, rules *config.TransactionConfig) *Authenticator {
	return &Authenticator{
		networkSymbol: networkSymbol,
		rules:         rules,
	}
}

// VerifyTransaction 完整模式，mempool准入用。
// schema、未来时间戳、最低手续费、密钥连续性、签名本身、余额，全部检查。
// members为发送钱包全部成员地址到账户的映射，sig发送者传nil
func (a *Authenticator) VerifyTransaction(
	sender *types.Account,
	members map[string]*types.Account,
	tx *types.Transaction,
	nowTimestamp int64,
) error {
	if err := a.ValidateSchema(tx); err != nil {
		return err
	}
	if tx.Timestamp > nowTimestamp {
		return types.NewInvalidTransactionError(tx.ID,
			"timestamp %d is in the future (now %d)", tx.Timestamp, nowTimestamp)
	}
	if err := a.checkMinFee(sender, members, tx); err != nil {
		return err
	}
	if sender.IsMultisig() {
		if err := a.verifyMultisig(sender, members, tx, true); err != nil {
			return err
		}
	} else if err := a.verifySig(sender, tx, true); err != nil {
		return err
	}
	return a.checkBalance(sender, tx)
}

// VerifySimplifiedTransaction id-only模式，区块内简化交易的复验用。
// 签名已被hash替代，无法重验签名本身；验证id、签名hash在位、
// 密钥连续性和余额。最低手续费不在此模式检查：手续费规则
// 是准入策略，对已被锻造者接受的区块不再适用
func (a *Authenticator) VerifySimplifiedTransaction(
	sender *types.Account,
	members map[string]*types.Account,
	tx *types.Transaction,
	nowTimestamp int64,
) error {
	if err := a.ValidateSchema(tx); err != nil {
		return err
	}
	if tx.Timestamp > nowTimestamp {
		return types.NewInvalidTransactionError(tx.ID,
			"timestamp %d is in the future (now %d)", tx.Timestamp, nowTimestamp)
	}
	if sender.IsMultisig() {
		if err := a.verifyMultisig(sender, members, tx, false); err != nil {
			return err
		}
	} else if err := a.verifySig(sender, tx, false); err != nil {
		return err
	}
	return a.checkBalance(sender, tx)
}

// ValidateSchema 与账户状态无关的结构检查
func (a *Authenticator) ValidateSchema(tx *types.Transaction) error {
	if err := tx.ValidateBasic(); err != nil {
		return types.NewInvalidTransactionError(tx.ID, "%v", err)
	}
	if !types.ValidWalletAddress(a.networkSymbol, tx.SenderAddress) {
		return types.NewInvalidTransactionError(tx.ID,
			"sender address %v does not belong to network %v", tx.SenderAddress, a.networkSymbol)
	}
	if len(tx.Message) > a.rules.MaxTransactionMessageLength {
		return types.NewInvalidTransactionError(tx.ID,
			"message exceeds %d bytes", a.rules.MaxTransactionMessageLength)
	}
	if spend := tx.TotalSpend(); len(spend.String()) > a.rules.MaxSpendableDigits {
		return types.NewInvalidTransactionError(tx.ID,
			"amount plus fee exceeds %d digits", a.rules.MaxSpendableDigits)
	}

	switch tx.Type {
	case types.TxTypeTransfer:
		if !types.ValidWalletAddress(a.networkSymbol, tx.RecipientAddress) {
			return types.NewInvalidTransactionError(tx.ID,
				"recipient address %v does not belong to network %v", tx.RecipientAddress, a.networkSymbol)
		}
	case types.TxTypeVote, types.TxTypeUnvote:
		if !types.ValidWalletAddress(a.networkSymbol, tx.DelegateAddress) {
			return types.NewInvalidTransactionError(tx.ID,
				"delegate address %v does not belong to network %v", tx.DelegateAddress, a.networkSymbol)
		}
	case types.TxTypeRegisterSigDetails:
		if err := checkKeyPair("newSigPublicKey", tx.NewSigPublicKey, tx.NewNextSigPublicKey); err != nil {
			return types.NewInvalidTransactionError(tx.ID, "%v", err)
		}
	case types.TxTypeRegisterMultisigDetails:
		if err := checkKeyPair("newMultisigPublicKey", tx.NewMultisigPublicKey, tx.NewNextMultisigPublicKey); err != nil {
			return types.NewInvalidTransactionError(tx.ID, "%v", err)
		}
	case types.TxTypeRegisterForgingDetails:
		if err := checkKeyPair("newForgingPublicKey", tx.NewForgingPublicKey, tx.NewNextForgingPublicKey); err != nil {
			return types.NewInvalidTransactionError(tx.ID, "%v", err)
		}
	case types.TxTypeRegisterMultisigWallet:
		if err := a.checkProposedMembers(tx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authenticator) checkProposedMembers(tx *types.Transaction) error {
	if len(tx.MemberAddresses) < a.rules.MinMultisigMembers ||
		len(tx.MemberAddresses) > a.rules.MaxMultisigMembers {
		return types.NewInvalidTransactionError(tx.ID,
			"member count %d outside [%d, %d]",
			len(tx.MemberAddresses), a.rules.MinMultisigMembers, a.rules.MaxMultisigMembers)
	}
	seen := make(map[string]struct{}, len(tx.MemberAddresses))
	for _, member := range tx.MemberAddresses {
		if !types.ValidWalletAddress(a.networkSymbol, member) {
			return types.NewInvalidTransactionError(tx.ID,
				"member address %v does not belong to network %v", member, a.networkSymbol)
		}
		if _, dup := seen[member]; dup {
			return types.NewInvalidTransactionError(tx.ID, "duplicate member address %v", member)
		}
		seen[member] = struct{}{}
	}
	return nil
}

func (a *Authenticator) checkMinFee(sender *types.Account, members map[string]*types.Account, tx *types.Transaction) error {
	min := a.rules.MinFee(tx.Type)
	if tx.Type == types.TxTypeRegisterMultisigWallet {
		min = min.Add(a.rules.MultisigRegistrationSurcharge(len(tx.MemberAddresses)))
	}
	if sender.IsMultisig() {
		min = min.Add(a.rules.MultisigTransactionSurcharge(len(members)))
	}
	if tx.Fee.Cmp(min) < 0 {
		return types.NewInvalidTransactionError(tx.ID,
			"fee %v below the %v minimum %v", tx.Fee, tx.Type, min)
	}
	return nil
}

// verifySig 验证sig账户的发送者认证。
// 密钥连续性：交易携带的sigPublicKey必须等于账户当前key或next key；
// 账户尚无sigPublicKey时回退到地址派生规则（首次使用）
func (a *Authenticator) verifySig(sender *types.Account, tx *types.Transaction, full bool) error {
	if len(tx.Signatures) > 0 {
		return types.NewInvalidTransactionError(tx.ID,
			"sender %v is not a multisig wallet but the transaction carries signature packets", tx.SenderAddress)
	}
	if len(tx.SigPublicKey) != ed25519.PubKeySize || len(tx.NextSigPublicKey) != ed25519.PubKeySize {
		return types.NewInvalidTransactionError(tx.ID, "missing or malformed sig keys")
	}
	if sender.HasSigKeys() {
		current, next := sender.MatchesSigKey(tx.SigPublicKey)
		if !current && !next {
			return types.NewInvalidTransactionError(tx.ID,
				"sigPublicKey matches neither the current nor the next key of %v", tx.SenderAddress)
		}
	} else if !types.AddressMatchesPublicKey(a.networkSymbol, tx.SenderAddress, tx.SigPublicKey) {
		return types.NewInvalidTransactionError(tx.ID,
			"sigPublicKey does not derive address %v", tx.SenderAddress)
	}

	if full {
		if err := cryptoclient.VerifyTransaction(tx); err != nil {
			return types.NewInvalidTransactionError(tx.ID, "%v", err)
		}
		return nil
	}
	if err := cryptoclient.VerifyTransactionID(tx); err != nil {
		return types.NewInvalidTransactionError(tx.ID, "%v", err)
	}
	if tx.SenderSignatureHash == "" {
		return types.NewInvalidTransactionError(tx.ID, "simplified transaction has no sender signature hash")
	}
	return nil
}

// verifyMultisig 验证multisig钱包的发送者认证。
// 至少requiredSignatureCount个互不相同的签名者，每个都是注册成员
// 且已有multisig密钥，签名包的公钥对上成员的当前或next key。
// 成员没有地址派生回退：必须先registerMultisigDetails
func (a *Authenticator) verifyMultisig(
	sender *types.Account,
	members map[string]*types.Account,
	tx *types.Transaction,
	full bool,
) error {
	if len(tx.SenderSignature) > 0 || tx.SenderSignatureHash != "" {
		return types.NewInvalidTransactionError(tx.ID,
			"sender %v is a multisig wallet but the transaction carries a sender signature", tx.SenderAddress)
	}
	if len(tx.Signatures) == 0 {
		return types.NewInvalidTransactionError(tx.ID,
			"multisig wallet %v sent a transaction without signature packets", tx.SenderAddress)
	}
	if err := cryptoclient.VerifyTransactionID(tx); err != nil {
		return types.NewInvalidTransactionError(tx.ID, "%v", err)
	}

	seen := make(map[string]struct{}, len(tx.Signatures))
	for i := range tx.Signatures {
		sig := &tx.Signatures[i]
		if _, dup := seen[sig.SignerAddress]; dup {
			return types.NewInvalidTransactionError(tx.ID, "duplicate signer %v", sig.SignerAddress)
		}
		seen[sig.SignerAddress] = struct{}{}

		member, ok := members[sig.SignerAddress]
		if !ok {
			return types.NewInvalidTransactionError(tx.ID,
				"signer %v is not a member of wallet %v", sig.SignerAddress, tx.SenderAddress)
		}
		if !member.HasMultisigKeys() {
			return types.NewInvalidTransactionError(tx.ID,
				"member %v has no registered multisig key", sig.SignerAddress)
		}
		current, next := member.MatchesMultisigKey(sig.MultisigPublicKey)
		if !current && !next {
			return types.NewInvalidTransactionError(tx.ID,
				"multisigPublicKey matches neither the current nor the next key of member %v", sig.SignerAddress)
		}

		if full {
			if err := cryptoclient.VerifyMultisigTransactionSignature(tx, sig); err != nil {
				return types.NewInvalidTransactionError(tx.ID,
					"signature of member %v: %v", sig.SignerAddress, err)
			}
		} else if sig.SignatureHash == "" {
			return types.NewInvalidTransactionError(tx.ID,
				"simplified signature packet of member %v has no signature hash", sig.SignerAddress)
		}
	}
	if uint32(len(seen)) < sender.RequiredSignatureCount {
		return types.NewInvalidTransactionError(tx.ID,
			"%d signatures provided, wallet %v requires %d",
			len(seen), tx.SenderAddress, sender.RequiredSignatureCount)
	}
	return nil
}

func (a *Authenticator) checkBalance(sender *types.Account, tx *types.Transaction) error {
	if spend := tx.TotalSpend(); spend.Cmp(sender.Balance) > 0 {
		return types.NewInvalidTransactionError(tx.ID,
			"spend %v exceeds balance %v of %v", spend, sender.Balance, tx.SenderAddress)
	}
	return nil
}

func checkKeyPair(name string, current, next []byte) error {
	if len(current) != ed25519.PubKeySize {
		return fmt.Errorf("%s has %d bytes, want %d", name, len(current), ed25519.PubKeySize)
	}
	if len(next) != ed25519.PubKeySize {
		return fmt.Errorf("next %s has %d bytes, want %d", name, len(next), ed25519.PubKeySize)
	}
	return nil
}
