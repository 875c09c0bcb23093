package types

import (
	"encoding/hex"
	"strings"
)

// 钱包地址主体长度：初始sig公钥hex的前40位
const AddressHexLength = 40

// WalletAddressFromPublicKey 根据账户的初始sig公钥推导钱包地址：
// networkSymbol + hex(pubKey)[:40]
// 账户首次用钱时尚未登记sigPublicKey，认证就依赖该推导关系
func WalletAddressFromPublicKey(networkSymbol string, pubKey []byte) string {
	body := strings.ToLower(hex.EncodeToString(pubKey))
	if len(body) > AddressHexLength {
		body = body[:AddressHexLength]
	}
	return networkSymbol + body
}

// AddressMatchesPublicKey 首次使用规则：公钥hex的前40位等于地址主体
func AddressMatchesPublicKey(networkSymbol, address string, pubKey []byte) bool {
	return WalletAddressFromPublicKey(networkSymbol, pubKey) == address
}

// ValidNetworkSymbol 网络符号只允许小写字母，作为所有地址的前缀
func ValidNetworkSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, r := range symbol {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ValidWalletAddress 检查地址格式：前缀为网络符号，主体为40位hex
func ValidWalletAddress(networkSymbol, address string) bool {
	if !strings.HasPrefix(address, networkSymbol) {
		return false
	}
	body := address[len(networkSymbol):]
	if len(body) != AddressHexLength {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}
