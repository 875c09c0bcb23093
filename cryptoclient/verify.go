package cryptoclient

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"

	"ldpos_chain/types"
)

// 无状态的验证函数。公钥全部来自被验证对象自身，
// 密钥链和账户状态的对应关系由authenticator和executor负责检查

func verifySignature(pubKey, msg, sig []byte) error {
	if len(pubKey) != ed25519.PubKeySize {
		return fmt.Errorf("invalid public key size %d", len(pubKey))
	}
	if !ed25519.PubKey(pubKey).VerifySignature(msg, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

// VerifyTransactionID 重新计算交易id并比对
func VerifyTransactionID(tx *types.Transaction) error {
	if tx.ID == "" {
		return errors.New("transaction has no id")
	}
	if computed := tx.ComputeID(); computed != tx.ID {
		return fmt.Errorf("transaction id mismatch: got %v, computed %v", tx.ID, computed)
	}
	return nil
}

// VerifyTransaction 完整验证：id加上发送者签名
func VerifyTransaction(tx *types.Transaction) error {
	if err := VerifyTransactionID(tx); err != nil {
		return err
	}
	if len(tx.SenderSignature) == 0 {
		return errors.New("transaction has no sender signature")
	}
	return verifySignature(tx.SigPublicKey, tx.SigningBytes(), tx.SenderSignature)
}

// VerifyMultisigTransactionSignature 验证多签交易中单个成员的签名包
// 成员签的是交易的规范字节串，公钥取自签名包自身
func VerifyMultisigTransactionSignature(tx *types.Transaction, sig *types.MultisigSignature) error {
	if len(sig.Signature) == 0 {
		return errors.New("signature packet has no signature")
	}
	return verifySignature(sig.MultisigPublicKey, tx.SigningBytes(), sig.Signature)
}

// VerifyBlockID 重新计算区块id并比对
func VerifyBlockID(block *types.Block) error {
	if block.ID == "" {
		return errors.New("block has no id")
	}
	if computed := block.ComputeID(); computed != block.ID {
		return fmt.Errorf("block id mismatch: got %v, computed %v", block.ID, computed)
	}
	return nil
}

// VerifyBlock 完整验证：id加上锻造者签名
func VerifyBlock(block *types.Block) error {
	if err := VerifyBlockID(block); err != nil {
		return err
	}
	if len(block.ForgerSignature) == 0 {
		return errors.New("block has no forger signature")
	}
	return verifySignature(block.ForgingPublicKey, block.SigningBytes(), block.ForgerSignature)
}

// VerifyBlockSignature 验证委托人对候选区块的签名包
func VerifyBlockSignature(block *types.Block, sig *types.BlockSignature) error {
	if sig.BlockID != block.ID {
		return fmt.Errorf("block signature targets block %v, not %v", sig.BlockID, block.ID)
	}
	if len(sig.Signature) == 0 {
		return errors.New("block signature has no signature")
	}
	return verifySignature(sig.ForgingPublicKey, sig.SigningBytes(), sig.Signature)
}
