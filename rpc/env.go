package rpc

import (
	"github.com/tendermint/tendermint/libs/log"

	cfg "ldpos_chain/config"
	"ldpos_chain/consensus"
	"ldpos_chain/libs/metric"
	"ldpos_chain/mempool"
	"ldpos_chain/store"
)

var (
	env *Environment
)

// SetEnvironment 注入handler共享的节点服务句柄，
// 必须在RPC server开始接收请求之前调用一次
func SetEnvironment(e *Environment) {
	env = e
}

// Environment carries the node services the route handlers read from.
type Environment struct {
	Config    *cfg.Config
	Mempool   mempool.Mempool
	Consensus *consensus.ConsensusState
	Store     store.Store

	MetricSet *metric.MetricSet
	Logger    log.Logger
}
