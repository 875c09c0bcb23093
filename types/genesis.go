package types

import (
	"errors"
	"fmt"
	"io/ioutil"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"
)

// GenesisAccount 创世账户。携带forging密钥的账户同时注册为委托人
type GenesisAccount struct {
	Address string      `json:"address"`
	Type    AccountType `json:"type,omitempty"`
	Balance *Amount     `json:"balance"`

	SigPublicKey     tmbytes.HexBytes `json:"sigPublicKey,omitempty"`
	NextSigPublicKey tmbytes.HexBytes `json:"nextSigPublicKey,omitempty"`
	NextSigKeyIndex  uint64           `json:"nextSigKeyIndex,omitempty"`

	MultisigPublicKey     tmbytes.HexBytes `json:"multisigPublicKey,omitempty"`
	NextMultisigPublicKey tmbytes.HexBytes `json:"nextMultisigPublicKey,omitempty"`
	NextMultisigKeyIndex  uint64           `json:"nextMultisigKeyIndex,omitempty"`

	ForgingPublicKey     tmbytes.HexBytes `json:"forgingPublicKey,omitempty"`
	NextForgingPublicKey tmbytes.HexBytes `json:"nextForgingPublicKey,omitempty"`
	NextForgingKeyIndex  uint64           `json:"nextForgingKeyIndex,omitempty"`

	MemberAddresses        []string `json:"memberAddresses,omitempty"`
	RequiredSignatureCount uint32   `json:"requiredSignatureCount,omitempty"`
}

// GenesisVote 创世投票，用来给初始委托人非零的得票权重
type GenesisVote struct {
	VoterAddress    string `json:"voterAddress"`
	DelegateAddress string `json:"delegateAddress"`
}

// GenesisDoc 定义链的初始状态
type GenesisDoc struct {
	NetworkSymbol string           `json:"networkSymbol"`
	Timestamp     int64            `json:"timestamp"`
	Accounts      []GenesisAccount `json:"accounts"`
	Votes         []GenesisVote    `json:"votes,omitempty"`
}

// GenesisBlock 高度0的创世区块，所有节点据此得到一致的链尾起点
// 首个锻造区块的高度为1
func (genDoc *GenesisDoc) GenesisBlock() *Block {
	block := &Block{
		Height:       0,
		Timestamp:    genDoc.Timestamp,
		Transactions: Transactions{},
	}
	block.fillHeader()
	block.ID = block.ComputeID()
	return block
}

// ValidateAndComplete checks that all necessary fields are present and fills
// in defaults for optional fields left empty.
func (genDoc *GenesisDoc) ValidateAndComplete() error {
	if genDoc.NetworkSymbol == "" {
		return errors.New("genesis doc must include a network symbol")
	}
	if genDoc.Timestamp < 0 {
		return errors.New("genesis timestamp cannot be negative")
	}
	if len(genDoc.Accounts) == 0 {
		return errors.New("genesis doc has no accounts")
	}

	seen := make(map[string]struct{}, len(genDoc.Accounts))
	for i := range genDoc.Accounts {
		acc := &genDoc.Accounts[i]
		if !ValidWalletAddress(genDoc.NetworkSymbol, acc.Address) {
			return fmt.Errorf("genesis account #%d has invalid address %q", i, acc.Address)
		}
		if _, ok := seen[acc.Address]; ok {
			return fmt.Errorf("duplicate genesis account %v", acc.Address)
		}
		seen[acc.Address] = struct{}{}

		if acc.Type == "" {
			acc.Type = AccountTypeSig
		}
		if acc.Balance == nil {
			acc.Balance = ZeroAmount()
		}
		if acc.Balance.Sign() < 0 {
			return fmt.Errorf("genesis account %v has negative balance", acc.Address)
		}
		if acc.Type == AccountTypeMultisig {
			if len(acc.MemberAddresses) == 0 {
				return fmt.Errorf("multisig genesis account %v has no members", acc.Address)
			}
			if acc.RequiredSignatureCount == 0 ||
				int(acc.RequiredSignatureCount) > len(acc.MemberAddresses) {
				return fmt.Errorf("multisig genesis account %v has invalid required signature count", acc.Address)
			}
		}
	}

	for i, v := range genDoc.Votes {
		if _, ok := seen[v.VoterAddress]; !ok {
			return fmt.Errorf("genesis vote #%d references unknown voter %v", i, v.VoterAddress)
		}
		if _, ok := seen[v.DelegateAddress]; !ok {
			return fmt.Errorf("genesis vote #%d references unknown delegate %v", i, v.DelegateAddress)
		}
	}

	return nil
}

// SaveAs is a utility method for saving GenensisDoc as a JSON file.
func (genDoc *GenesisDoc) SaveAs(file string) error {
	genDocBytes, err := tmjson.MarshalIndent(genDoc, "", "  ")
	if err != nil {
		return err
	}
	return tmos.WriteFile(file, genDocBytes, 0644)
}

// GenesisDocFromJSON unmarshalls JSON data into a GenesisDoc.
func GenesisDocFromJSON(jsonBlob []byte) (*GenesisDoc, error) {
	genDoc := GenesisDoc{}
	err := tmjson.Unmarshal(jsonBlob, &genDoc)
	if err != nil {
		return nil, err
	}

	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}

	return &genDoc, err
}

// GenesisDocFromFile reads JSON data from a file and unmarshalls it into a
// GenesisDoc.
func GenesisDocFromFile(genDocFile string) (*GenesisDoc, error) {
	jsonBlob, err := ioutil.ReadFile(genDocFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read GenesisDoc file: %w", err)
	}
	genDoc, err := GenesisDocFromJSON(jsonBlob)
	if err != nil {
		return nil, fmt.Errorf("error reading GenesisDoc at %v: %w", genDocFile, err)
	}
	return genDoc, nil
}
