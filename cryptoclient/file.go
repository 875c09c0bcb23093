package cryptoclient

import (
	"fmt"
	"io/ioutil"

	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/libs/tempfile"

	"ldpos_chain/types"
)

//-------------------------------------------------------------------------------

// FileKey stores the immutable part of the wallet.
// seed可以是明文，也可以是encryptedSeed（scrypt+AES-192-CBC，
// 由LDPOS_PASSWORD解密），两者互斥
type FileKey struct {
	NetworkSymbol string `json:"networkSymbol"`
	Address       string `json:"address"`
	Seed          string `json:"seed,omitempty"`
	EncryptedSeed string `json:"encryptedSeed,omitempty"`

	filePath string
}

// Save persists the FileKey to its filePath.
func (key FileKey) Save() {
	outFile := key.filePath
	if outFile == "" {
		panic("cannot save wallet key: filePath not set")
	}

	jsonBytes, err := tmjson.MarshalIndent(key, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(outFile, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FileKeyState stores the mutable part of the wallet: the next unused index
// of every key chain. It is persisted before a new index is used so a crash
// between signing and broadcasting never reuses an index.
type FileKeyState struct {
	SigKeyIndex      uint64 `json:"sigKeyIndex"`
	MultisigKeyIndex uint64 `json:"multisigKeyIndex"`
	ForgingKeyIndex  uint64 `json:"forgingKeyIndex"`

	filePath string
}

// Save persists the FileKeyState to its filePath. 没有绑定文件时为空操作
func (state *FileKeyState) Save() {
	if state.filePath == "" {
		return
	}

	jsonBytes, err := tmjson.MarshalIndent(state, "", "  ")
	if err != nil {
		panic(err)
	}
	err = tempfile.WriteFileAtomic(state.filePath, jsonBytes, 0600)
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------------------

// FileWallet implements a wallet using data persisted to disk.
type FileWallet struct {
	Key   FileKey
	State FileKeyState
}

// NewFileWallet generates a new wallet from the given seed and paths.
func NewFileWallet(networkSymbol, seed, keyFilePath, stateFilePath string) *FileWallet {
	return &FileWallet{
		Key: FileKey{
			NetworkSymbol: networkSymbol,
			Address:       types.WalletAddressFromPublicKey(networkSymbol, PublicKeyAt(seed, KeyChainSig, 0)),
			Seed:          seed,
			filePath:      keyFilePath,
		},
		State: FileKeyState{
			filePath: stateFilePath,
		},
	}
}

// GenFileWallet generates a new wallet with a random seed and sets the file
// paths, but does not call Save().
func GenFileWallet(networkSymbol, keyFilePath, stateFilePath string) *FileWallet {
	return NewFileWallet(networkSymbol, tmrand.Str(64), keyFilePath, stateFilePath)
}

// LoadFileWallet loads a FileWallet from the filePaths. If either file path
// does not exist or the encrypted seed cannot be decrypted, the program exits.
// password解密encryptedSeed，明文seed时可以传空
func LoadFileWallet(keyFilePath, stateFilePath, password string) *FileWallet {
	keyJSONBytes, err := ioutil.ReadFile(keyFilePath)
	if err != nil {
		tmos.Exit(err.Error())
	}
	key := FileKey{}
	err = tmjson.Unmarshal(keyJSONBytes, &key)
	if err != nil {
		tmos.Exit(fmt.Sprintf("Error reading wallet key from %v: %v\n", keyFilePath, err))
	}
	key.filePath = keyFilePath

	if key.Seed == "" {
		if key.EncryptedSeed == "" {
			tmos.Exit(fmt.Sprintf("wallet key %v has neither seed nor encryptedSeed", keyFilePath))
		}
		seed, err := DecryptPassphrase(key.EncryptedSeed, password)
		if err != nil {
			tmos.Exit(fmt.Sprintf("Error decrypting wallet seed from %v: %v\n", keyFilePath, err))
		}
		key.Seed = seed
	}

	// overwrite the address for convenience
	key.Address = types.WalletAddressFromPublicKey(key.NetworkSymbol,
		PublicKeyAt(key.Seed, KeyChainSig, 0))

	state := FileKeyState{}
	if tmos.FileExists(stateFilePath) {
		stateJSONBytes, err := ioutil.ReadFile(stateFilePath)
		if err != nil {
			tmos.Exit(err.Error())
		}
		err = tmjson.Unmarshal(stateJSONBytes, &state)
		if err != nil {
			tmos.Exit(fmt.Sprintf("Error reading wallet state from %v: %v\n", stateFilePath, err))
		}
	}
	state.filePath = stateFilePath

	return &FileWallet{
		Key:   key,
		State: state,
	}
}

// LoadOrGenFileWallet loads a FileWallet from the given filePaths
// or else generates a new one and saves it to the filePaths.
func LoadOrGenFileWallet(networkSymbol, keyFilePath, stateFilePath, password string) *FileWallet {
	var fw *FileWallet
	if tmos.FileExists(keyFilePath) {
		fw = LoadFileWallet(keyFilePath, stateFilePath, password)
	} else {
		fw = GenFileWallet(networkSymbol, keyFilePath, stateFilePath)
		fw.Save()
	}
	return fw
}

// Save persists the FileWallet to disk.
func (fw *FileWallet) Save() {
	fw.Key.Save()
	fw.State.Save()
}

// Client returns a WalletClient bound to this wallet's persisted key state.
func (fw *FileWallet) Client(opts ...ClientOption) *WalletClient {
	opts = append([]ClientOption{WithKeyState(&fw.State)}, opts...)
	return NewClient(fw.Key.NetworkSymbol, fw.Key.Seed, opts...)
}

// GetAddress returns the wallet address.
func (fw *FileWallet) GetAddress() string {
	return fw.Key.Address
}

// String returns a string representation of the FileWallet.
func (fw *FileWallet) String() string {
	return fmt.Sprintf("FileWallet{%v}", fw.GetAddress())
}
