package rpc

import (
	jsoniter "github.com/json-iterator/go"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type ResultNetworkSymbol struct {
	NetworkSymbol string `json:"networkSymbol"`
}

func (a api) GetNetworkSymbol(ctx *rpctypes.Context) (*ResultNetworkSymbol, error) {
	return &ResultNetworkSymbol{NetworkSymbol: env.Consensus.GetState().NetworkSymbol}, nil
}

type ResultStatus struct {
	NetworkSymbol           string `json:"networkSymbol"`
	Moniker                 string `json:"moniker"`
	Height                  uint64 `json:"height"`
	LastBlockID             string `json:"lastBlockId"`
	LastBlockTimestamp      int64  `json:"lastBlockTimestamp"`
	CurrentSlot             int64  `json:"currentSlot"`
	CurrentForgerAddress    string `json:"currentForgerAddress"`
	ActiveDelegateCount     int    `json:"activeDelegateCount"`
	PendingTransactionCount int    `json:"pendingTransactionCount"`
}

// Status 链尖和当前slot的快照
func (a api) Status(ctx *rpctypes.Context) (*ResultStatus, error) {
	state := env.Consensus.GetState()
	round := env.Consensus.GetRoundState()

	forger := ""
	if round.Forger != nil {
		forger = round.Forger.Address
	}
	return &ResultStatus{
		NetworkSymbol:           state.NetworkSymbol,
		Moniker:                 env.Config.Moniker,
		Height:                  state.Height,
		LastBlockID:             state.LastBlockID,
		LastBlockTimestamp:      state.LastBlockTimestamp,
		CurrentSlot:             round.Slot,
		CurrentForgerAddress:    forger,
		ActiveDelegateCount:     state.Delegates.Size(),
		PendingTransactionCount: env.Mempool.Size(),
	}, nil
}

type ResultMinFees struct {
	MinTransactionFees                  map[string]string `json:"minTransactionFees"`
	MinMultisigRegistrationFeePerMember string            `json:"minMultisigRegistrationFeePerMember"`
	MinMultisigTransactionFeePerMember  string            `json:"minMultisigTransactionFeePerMember"`
}

func (a api) GetMinFees(ctx *rpctypes.Context) (*ResultMinFees, error) {
	tc := env.Config.Transaction
	return &ResultMinFees{
		MinTransactionFees:                  tc.MinTransactionFees,
		MinMultisigRegistrationFeePerMember: tc.MinMultisigRegistrationFeePerMember,
		MinMultisigTransactionFeePerMember:  tc.MinMultisigTransactionFeePerMember,
	}, nil
}

type ResultModuleOptions map[string]interface{}

// GetModuleOptions 以毫秒/原始值返回节点生效的全部链上选项，
// 时间类选项一律换算成毫秒数
func (a api) GetModuleOptions(ctx *rpctypes.Context) (ResultModuleOptions, error) {
	conf := env.Config
	cc := conf.Consensus
	sc := conf.Sync
	tc := conf.Transaction
	mc := conf.Mempool
	rc := conf.RPC

	return ResultModuleOptions{
		"networkSymbol": conf.NetworkSymbol,

		"forgingInterval":                cc.ForgingInterval.Milliseconds(),
		"forgerCount":                    cc.ForgerCount,
		"minForgerBlockSignatureRatio":   cc.MinForgerBlockSignatureRatio,
		"blockSignaturesToProvide":       cc.BlockSignaturesToProvide,
		"blockSignaturesToFetch":         cc.BlockSignaturesToFetch,
		"blockSignaturesIndicator":       cc.BlockSignaturesIndicator,
		"forgingBlockBroadcastDelay":     cc.ForgingBlockBroadcastDelay.Milliseconds(),
		"forgingSignatureBroadcastDelay": cc.ForgingSignatureBroadcastDelay.Milliseconds(),
		"autoSyncForgingKeyIndex":        cc.AutoSyncForgingKeyIndex,
		"propagationMode":                cc.PropagationMode,
		"propagationTimeout":             cc.PropagationTimeout.Milliseconds(),
		"propagationRandomness":          cc.PropagationRandomness.Milliseconds(),
		"timePollInterval":               cc.TimePollInterval.Milliseconds(),
		"minTransactionsPerBlock":        cc.MinTransactionsPerBlock,
		"maxTransactionsPerBlock":        cc.MaxTransactionsPerBlock,

		"fetchBlockLimit":                        sc.FetchBlockLimit,
		"fetchBlockPause":                        sc.FetchBlockPause.Milliseconds(),
		"fetchBlockEndConfirmations":             sc.FetchBlockEndConfirmations,
		"maxConsecutiveBlockFetchFailures":       sc.MaxConsecutiveBlockFetchFailures,
		"maxConsecutiveTransactionFetchFailures": sc.MaxConsecutiveTransactionFetchFailures,
		"catchUpConsensusPollCount":              sc.CatchUpConsensusPollCount,
		"catchUpConsensusMinRatio":               sc.CatchUpConsensusMinRatio,

		"minTransactionFees":                  tc.MinTransactionFees,
		"minMultisigRegistrationFeePerMember": tc.MinMultisigRegistrationFeePerMember,
		"minMultisigTransactionFeePerMember":  tc.MinMultisigTransactionFeePerMember,
		"minMultisigMembers":                  tc.MinMultisigMembers,
		"maxMultisigMembers":                  tc.MaxMultisigMembers,
		"maxSpendableDigits":                  tc.MaxSpendableDigits,
		"maxTransactionMessageLength":         tc.MaxTransactionMessageLength,
		"maxVotesPerAccount":                  tc.MaxVotesPerAccount,

		"maxPendingTransactionsPerAccount":      mc.MaxPendingTransactionsPerAccount,
		"maxTransactionBackpressurePerAccount":  mc.MaxTransactionBackpressurePerAccount,
		"pendingTransactionExpiry":              mc.PendingTransactionExpiry.Milliseconds(),
		"pendingTransactionExpiryCheckInterval": mc.PendingTransactionExpiryCheckInterval.Milliseconds(),

		"apiLimit":            rc.APILimit,
		"maxPublicAPILimit":   rc.MaxPublicAPILimit,
		"maxPublicAPIOffset":  rc.MaxPublicAPIOffset,
		"maxPrivateAPILimit":  rc.MaxPrivateAPILimit,
		"maxPrivateAPIOffset": rc.MaxPrivateAPIOffset,
	}, nil
}

type ResultMetrics struct {
	Metrics map[string]jsoniter.RawMessage `json:"metrics"`
}

// Metrics 返回各子系统的即时计数，label为空时返回全部
func (a api) Metrics(ctx *rpctypes.Context, label string) (*ResultMetrics, error) {
	result := &ResultMetrics{Metrics: make(map[string]jsoniter.RawMessage)}

	var labels []string
	if label != "" {
		labels = []string{label}
	} else {
		labels = env.MetricSet.Labels()
	}
	for _, l := range labels {
		if item := env.MetricSet.GetMetrics(l); item != nil {
			result.Metrics[l] = jsoniter.RawMessage(item.JSONString())
		}
	}
	return result, nil
}
