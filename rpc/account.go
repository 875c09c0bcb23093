package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/types"
)

type ResultAccount struct {
	Account *types.Account `json:"account"`
}

func (a api) GetAccount(ctx *rpctypes.Context, walletAddress string) (*ResultAccount, error) {
	account, err := env.Store.GetAccount(walletAddress)
	if err != nil {
		return nil, err
	}
	return &ResultAccount{Account: account}, nil
}

type ResultAccounts struct {
	Accounts []*types.Account `json:"accounts"`
}

func (a api) GetAccountsByBalance(ctx *rpctypes.Context, offset, limit int, order string) (*ResultAccounts, error) {
	offset, limit, ord, err := a.sanitizeList(offset, limit, order)
	if err != nil {
		return nil, err
	}
	accounts, err := env.Store.GetAccountsByBalance(offset, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultAccounts{Accounts: accounts}, nil
}

type ResultMultisigWalletMembers struct {
	Members []string `json:"members"`
}

func (a api) GetMultisigWalletMembers(ctx *rpctypes.Context, walletAddress string) (*ResultMultisigWalletMembers, error) {
	members, err := env.Store.GetMultisigWalletMembers(walletAddress)
	if err != nil {
		return nil, err
	}
	return &ResultMultisigWalletMembers{Members: members}, nil
}

type ResultMinMultisigRequiredSignatures struct {
	RequiredSignatureCount uint32 `json:"requiredSignatureCount"`
}

func (a api) GetMinMultisigRequiredSignatures(ctx *rpctypes.Context, walletAddress string) (*ResultMinMultisigRequiredSignatures, error) {
	account, err := env.Store.GetAccount(walletAddress)
	if err != nil {
		return nil, err
	}
	if !account.IsMultisig() {
		return nil, types.ErrAccountWasNotMultisig(walletAddress)
	}
	return &ResultMinMultisigRequiredSignatures{
		RequiredSignatureCount: account.RequiredSignatureCount,
	}, nil
}

type ResultAccountVotes struct {
	Votes []string `json:"votes"`
}

func (a api) GetAccountVotes(ctx *rpctypes.Context, walletAddress string) (*ResultAccountVotes, error) {
	votes, err := env.Store.GetAccountVotes(walletAddress)
	if err != nil {
		return nil, err
	}
	return &ResultAccountVotes{Votes: votes}, nil
}
