package cryptoclient

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/scrypt"

	"ldpos_chain/types"
)

// 加密钱包seed的口令方案：AES-192-CBC，密钥由LDPOS_PASSWORD经scrypt派生，
// IV固定。目的只是让seed不以明文落盘，不是抵抗离线爆破的存储方案
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	aesKeyLength = 24 // AES-192
)

var (
	passphraseSalt = []byte("ldpos_chain_seed")
	passphraseIV   = []byte("ldposchain_fixIV") // aes.BlockSize字节
)

func deriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, types.NewInvalidActionError(types.ErrNameInvalidPassphrase,
			"empty password")
	}
	return scrypt.Key([]byte(password), passphraseSalt, scryptN, scryptR, scryptP, aesKeyLength)
}

// EncryptPassphrase 用password加密seed，返回hex密文
func EncryptPassphrase(plain, password string) (string, error) {
	key, err := deriveKey(password)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, passphraseIV).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(ciphertext), nil
}

// DecryptPassphrase 解密hex密文，password错误时返回InvalidPassphraseError
func DecryptPassphrase(encrypted, password string) (string, error) {
	key, err := deriveKey(password)
	if err != nil {
		return "", err
	}
	ciphertext, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", types.NewInvalidActionError(types.ErrNameInvalidPassphrase,
			"encrypted seed is not valid hex")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", types.NewInvalidActionError(types.ErrNameInvalidPassphrase,
			"encrypted seed has invalid length")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, passphraseIV).CryptBlocks(plain, ciphertext)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		// 填充损坏几乎总是口令不对
		return "", types.NewInvalidActionError(types.ErrNameInvalidPassphrase,
			"wrong password")
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
