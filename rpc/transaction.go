package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/mempool"
	"ldpos_chain/store"
	"ldpos_chain/types"
)

type ResultPendingTransaction struct {
	Transaction *types.Transaction `json:"transaction"`
}

// GetSignedPendingTransaction 返回mempool中带原始签名的完整交易，
// 被打包后的交易要走getTransaction查
func (a api) GetSignedPendingTransaction(ctx *rpctypes.Context, transactionId string) (*ResultPendingTransaction, error) {
	tx, err := env.Mempool.GetSignedPendingTransaction(transactionId)
	if err != nil {
		return nil, err
	}
	return &ResultPendingTransaction{Transaction: tx}, nil
}

type ResultPendingTransactions struct {
	Transactions []*types.Transaction `json:"transactions"`
}

func (a api) GetOutboundPendingTransactions(ctx *rpctypes.Context, walletAddress string, offset, limit int) (*ResultPendingTransactions, error) {
	offset, limit, _, err := a.sanitizeList(offset, limit, "")
	if err != nil {
		return nil, err
	}
	txs := env.Mempool.GetOutboundPendingTransactions(walletAddress)
	lo, hi := window(len(txs), offset, limit)
	return &ResultPendingTransactions{Transactions: txs[lo:hi]}, nil
}

type ResultPendingTransactionCount struct {
	Count int `json:"count"`
}

func (a api) GetPendingTransactionCount(ctx *rpctypes.Context) (*ResultPendingTransactionCount, error) {
	return &ResultPendingTransactionCount{Count: env.Mempool.Size()}, nil
}

type ResultPostTransaction struct {
	TransactionID string `json:"transactionId"`
}

// PostTransaction 对交易做完整认证后加入mempool并向peer传播。
// 认证失败的原因原样返回给调用方
func (a api) PostTransaction(ctx *rpctypes.Context, transaction *types.Transaction) (*ResultPostTransaction, error) {
	if transaction == nil {
		return nil, types.NewInvalidActionError(types.ErrNameInvalidTransaction,
			"transaction was missing")
	}
	err := env.Mempool.AddTransaction(transaction, mempool.TxInfo{SenderID: mempool.UnknownPeerID})
	if err != nil {
		return nil, err
	}
	return &ResultPostTransaction{TransactionID: transaction.ID}, nil
}

type ResultTransaction struct {
	*store.StoredTransaction
}

func (a api) GetTransaction(ctx *rpctypes.Context, transactionId string) (*ResultTransaction, error) {
	tx, err := env.Store.GetTransaction(transactionId)
	if err != nil {
		return nil, err
	}
	return &ResultTransaction{StoredTransaction: tx}, nil
}

type ResultTransactions struct {
	Transactions []*store.StoredTransaction `json:"transactions"`
}

func (a api) GetTransactionsByTimestamp(ctx *rpctypes.Context, offset, limit int, order string) (*ResultTransactions, error) {
	offset, limit, ord, err := a.sanitizeList(offset, limit, order)
	if err != nil {
		return nil, err
	}
	txs, err := env.Store.GetTransactionsByTimestamp(offset, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultTransactions{Transactions: txs}, nil
}

func (a api) GetInboundTransactions(ctx *rpctypes.Context, walletAddress string, fromTimestamp int64, limit int, order string) (*ResultTransactions, error) {
	_, limit, ord, err := a.sanitizeList(0, limit, order)
	if err != nil {
		return nil, err
	}
	txs, err := env.Store.GetInboundTransactions(walletAddress, fromTimestamp, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultTransactions{Transactions: txs}, nil
}

func (a api) GetOutboundTransactions(ctx *rpctypes.Context, walletAddress string, fromTimestamp int64, limit int, order string) (*ResultTransactions, error) {
	_, limit, ord, err := a.sanitizeList(0, limit, order)
	if err != nil {
		return nil, err
	}
	txs, err := env.Store.GetOutboundTransactions(walletAddress, fromTimestamp, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultTransactions{Transactions: txs}, nil
}

func (a api) GetTransactionsFromBlock(ctx *rpctypes.Context, blockId string, offset, limit int) (*ResultTransactions, error) {
	offset, limit, _, err := a.sanitizeList(offset, limit, "")
	if err != nil {
		return nil, err
	}
	txs, err := env.Store.GetTransactionsFromBlock(blockId)
	if err != nil {
		return nil, err
	}
	lo, hi := window(len(txs), offset, limit)
	return &ResultTransactions{Transactions: txs[lo:hi]}, nil
}

func (a api) GetInboundTransactionsFromBlock(ctx *rpctypes.Context, walletAddress, blockId string) (*ResultTransactions, error) {
	txs, err := env.Store.GetInboundTransactionsFromBlock(walletAddress, blockId)
	if err != nil {
		return nil, err
	}
	return &ResultTransactions{Transactions: txs}, nil
}

func (a api) GetOutboundTransactionsFromBlock(ctx *rpctypes.Context, walletAddress, blockId string) (*ResultTransactions, error) {
	txs, err := env.Store.GetOutboundTransactionsFromBlock(walletAddress, blockId)
	if err != nil {
		return nil, err
	}
	return &ResultTransactions{Transactions: txs}, nil
}
