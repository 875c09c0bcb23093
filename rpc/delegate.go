package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/types"
)

type ResultDelegate struct {
	Delegate *types.Delegate `json:"delegate"`
}

func (a api) GetDelegate(ctx *rpctypes.Context, walletAddress string) (*ResultDelegate, error) {
	delegate, err := env.Store.GetDelegate(walletAddress)
	if err != nil {
		return nil, err
	}
	return &ResultDelegate{Delegate: delegate}, nil
}

type ResultDelegates struct {
	Delegates []*types.Delegate `json:"delegates"`
}

func (a api) GetDelegatesByVoteWeight(ctx *rpctypes.Context, offset, limit int, order string) (*ResultDelegates, error) {
	offset, limit, ord, err := a.sanitizeList(offset, limit, order)
	if err != nil {
		return nil, err
	}
	delegates, err := env.Store.GetDelegatesByVoteWeight(offset, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultDelegates{Delegates: delegates}, nil
}

// GetForgingDelegates 返回共识循环当前采用的活跃委托人轮换表
func (a api) GetForgingDelegates(ctx *rpctypes.Context) (*ResultDelegates, error) {
	state := env.Consensus.GetState()
	return &ResultDelegates{Delegates: state.Delegates.Delegates}, nil
}
