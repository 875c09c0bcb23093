package cryptoclient

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/ed25519"
)

// KeyChain 账户的三条独立密钥链
type KeyChain string

const (
	KeyChainSig      = KeyChain("sig")
	KeyChainMultisig = KeyChain("multisig")
	KeyChainForging  = KeyChain("forging")
)

// 密钥演化方案：每条链按序号派生一次性密钥对，
// 序号i的私钥只用一次，交易/区块同时携带序号i+1的公钥作为下一把钥匙的承诺。
// 派生是确定性的，钱包只要记住seed和当前序号就能恢复任何一把钥匙
func privKeyAt(seed string, chain KeyChain, index uint64) ed25519.PrivKey {
	secret := []byte(fmt.Sprintf("%s/%s/%d", seed, chain, index))
	return ed25519.GenPrivKeyFromSecret(secret)
}

// PublicKeyAt 序号index的公钥
func PublicKeyAt(seed string, chain KeyChain, index uint64) []byte {
	return privKeyAt(seed, chain, index).PubKey().Bytes()
}
