package rpc

import (
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
)

// Routes 公开API表，offset/limit受maxPublicAPI*上限约束
func Routes() map[string]*rpcserver.RPCFunc {
	return routes(api{})
}

// PrivateRoutes 同一组路由按maxPrivateAPI*上限开放，
// 只应挂在回环地址上
func PrivateRoutes() map[string]*rpcserver.RPCFunc {
	return routes(api{private: true})
}

func routes(a api) map[string]*rpcserver.RPCFunc {
	return map[string]*rpcserver.RPCFunc{
		// node
		"getNetworkSymbol": rpcserver.NewRPCFunc(a.GetNetworkSymbol, ""),
		"status":           rpcserver.NewRPCFunc(a.Status, ""),
		"metrics":          rpcserver.NewRPCFunc(a.Metrics, "label"),
		"getMinFees":       rpcserver.NewRPCFunc(a.GetMinFees, ""),
		"getModuleOptions": rpcserver.NewRPCFunc(a.GetModuleOptions, ""),

		// accounts
		"getAccount":                       rpcserver.NewRPCFunc(a.GetAccount, "walletAddress"),
		"getAccountsByBalance":             rpcserver.NewRPCFunc(a.GetAccountsByBalance, "offset,limit,order"),
		"getMultisigWalletMembers":         rpcserver.NewRPCFunc(a.GetMultisigWalletMembers, "walletAddress"),
		"getMinMultisigRequiredSignatures": rpcserver.NewRPCFunc(a.GetMinMultisigRequiredSignatures, "walletAddress"),
		"getAccountVotes":                  rpcserver.NewRPCFunc(a.GetAccountVotes, "walletAddress"),

		// pending transactions
		"getSignedPendingTransaction":    rpcserver.NewRPCFunc(a.GetSignedPendingTransaction, "transactionId"),
		"getOutboundPendingTransactions": rpcserver.NewRPCFunc(a.GetOutboundPendingTransactions, "walletAddress,offset,limit"),
		"getPendingTransactionCount":     rpcserver.NewRPCFunc(a.GetPendingTransactionCount, ""),
		"postTransaction":                rpcserver.NewRPCFunc(a.PostTransaction, "transaction"),

		// settled transactions
		"getTransaction":                   rpcserver.NewRPCFunc(a.GetTransaction, "transactionId"),
		"getTransactionsByTimestamp":       rpcserver.NewRPCFunc(a.GetTransactionsByTimestamp, "offset,limit,order"),
		"getInboundTransactions":           rpcserver.NewRPCFunc(a.GetInboundTransactions, "walletAddress,fromTimestamp,limit,order"),
		"getOutboundTransactions":          rpcserver.NewRPCFunc(a.GetOutboundTransactions, "walletAddress,fromTimestamp,limit,order"),
		"getTransactionsFromBlock":         rpcserver.NewRPCFunc(a.GetTransactionsFromBlock, "blockId,offset,limit"),
		"getInboundTransactionsFromBlock":  rpcserver.NewRPCFunc(a.GetInboundTransactionsFromBlock, "walletAddress,blockId"),
		"getOutboundTransactionsFromBlock": rpcserver.NewRPCFunc(a.GetOutboundTransactionsFromBlock, "walletAddress,blockId"),

		// blocks
		"getBlock":                  rpcserver.NewRPCFunc(a.GetBlock, "blockId"),
		"hasBlock":                  rpcserver.NewRPCFunc(a.HasBlock, "blockId"),
		"getBlockAtHeight":          rpcserver.NewRPCFunc(a.GetBlockAtHeight, "height"),
		"getMaxBlockHeight":         rpcserver.NewRPCFunc(a.GetMaxBlockHeight, ""),
		"getBlocksFromHeight":       rpcserver.NewRPCFunc(a.GetBlocksFromHeight, "fromHeight,limit"),
		"getSignedBlocksFromHeight": rpcserver.NewRPCFunc(a.GetSignedBlocksFromHeight, "fromHeight,limit"),
		"getBlocksBetweenHeights":   rpcserver.NewRPCFunc(a.GetBlocksBetweenHeights, "fromHeight,toHeight,limit"),
		"getBlocksByTimestamp":      rpcserver.NewRPCFunc(a.GetBlocksByTimestamp, "offset,limit,order"),
		"getLastBlockAtTimestamp":   rpcserver.NewRPCFunc(a.GetLastBlockAtTimestamp, "timestamp"),
		"getBlockInclusionStats":    rpcserver.NewRPCFunc(a.GetBlockInclusionStats, "fromHeight,toHeight,limit"),

		// delegates
		"getDelegate":              rpcserver.NewRPCFunc(a.GetDelegate, "walletAddress"),
		"getDelegatesByVoteWeight": rpcserver.NewRPCFunc(a.GetDelegatesByVoteWeight, "offset,limit,order"),
		"getForgingDelegates":      rpcserver.NewRPCFunc(a.GetForgingDelegates, ""),
	}
}
