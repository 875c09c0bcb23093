package types

import "errors"

// Vote - 投票人对委托人的一张投票，权重随投票人余额变动
// 每个(voter, delegate)至多一行
type Vote struct {
	VoterAddress    string `json:"voterAddress"`
	DelegateAddress string `json:"delegateAddress"`
	Height          uint64 `json:"height"`
}

func (v *Vote) ValidateBasic() error {
	if v.VoterAddress == "" {
		return errors.New("vote has no voter address")
	}
	if v.DelegateAddress == "" {
		return errors.New("vote has no delegate address")
	}
	return nil
}
