package rpc

import (
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/libs/utils"
	"ldpos_chain/types"
)

type ResultBlock struct {
	Block *types.Block `json:"block"`
}

func (a api) GetBlock(ctx *rpctypes.Context, blockId string) (*ResultBlock, error) {
	block, err := env.Store.GetBlock(blockId)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{Block: block}, nil
}

type ResultHasBlock struct {
	HasBlock bool `json:"hasBlock"`
}

func (a api) HasBlock(ctx *rpctypes.Context, blockId string) (*ResultHasBlock, error) {
	has, err := env.Store.HasBlock(blockId)
	if err != nil {
		return nil, err
	}
	return &ResultHasBlock{HasBlock: has}, nil
}

func (a api) GetBlockAtHeight(ctx *rpctypes.Context, height uint64) (*ResultBlock, error) {
	block, err := env.Store.GetBlockAtHeight(height)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{Block: block}, nil
}

type ResultMaxBlockHeight struct {
	Height uint64 `json:"height"`
}

func (a api) GetMaxBlockHeight(ctx *rpctypes.Context) (*ResultMaxBlockHeight, error) {
	height, err := env.Store.GetMaxBlockHeight()
	if err != nil {
		return nil, err
	}
	return &ResultMaxBlockHeight{Height: height}, nil
}

type ResultBlocks struct {
	Blocks []*types.Block `json:"blocks"`
}

func (a api) GetBlocksFromHeight(ctx *rpctypes.Context, fromHeight uint64, limit int) (*ResultBlocks, error) {
	limit, err := a.sanitizeLimit(limit)
	if err != nil {
		return nil, err
	}
	blocks, err := env.Store.GetBlocksFromHeight(fromHeight, limit)
	if err != nil {
		return nil, err
	}
	return &ResultBlocks{Blocks: blocks}, nil
}

// GetSignedBlocksFromHeight 连同存档的签名一起返回区块，
// 跨节点追链用的就是这个查询
func (a api) GetSignedBlocksFromHeight(ctx *rpctypes.Context, fromHeight uint64, limit int) (*ResultBlocks, error) {
	limit, err := a.sanitizeLimit(limit)
	if err != nil {
		return nil, err
	}
	blocks, err := env.Store.GetSignedBlocksFromHeight(fromHeight, limit)
	if err != nil {
		return nil, err
	}
	return &ResultBlocks{Blocks: blocks}, nil
}

func (a api) GetBlocksBetweenHeights(ctx *rpctypes.Context, fromHeight, toHeight uint64, limit int) (*ResultBlocks, error) {
	limit, err := a.sanitizeLimit(limit)
	if err != nil {
		return nil, err
	}
	blocks, err := env.Store.GetBlocksBetweenHeights(fromHeight, toHeight, limit)
	if err != nil {
		return nil, err
	}
	return &ResultBlocks{Blocks: blocks}, nil
}

func (a api) GetBlocksByTimestamp(ctx *rpctypes.Context, offset, limit int, order string) (*ResultBlocks, error) {
	offset, limit, ord, err := a.sanitizeList(offset, limit, order)
	if err != nil {
		return nil, err
	}
	blocks, err := env.Store.GetBlocksByTimestamp(offset, limit, ord)
	if err != nil {
		return nil, err
	}
	return &ResultBlocks{Blocks: blocks}, nil
}

func (a api) GetLastBlockAtTimestamp(ctx *rpctypes.Context, timestamp int64) (*ResultBlock, error) {
	block, err := env.Store.GetLastBlockAtTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	return &ResultBlock{Block: block}, nil
}

type ResultBlockStats struct {
	Blocks []ResultBlockLatency `json:"blocks"`
}

type ResultBlockLatency struct {
	BlockID          string `json:"blockId"`
	Height           uint64 `json:"height"`
	Timestamp        int64  `json:"timestamp"`
	TransactionCount int    `json:"transactionCount"`

	MaxTxLatency  float64 `json:"maxTxLatency"`
	MinTxLatency  float64 `json:"minTxLatency"`
	MeanTxLatency float64 `json:"meanTxLatency"`
	AvgTxLatency  float64 `json:"avgTxLatency"`
}

// GetBlockInclusionStats 按区块统计交易从签发到进块等了多少秒。
// 时间戳晚于区块slot起点的交易不计入，空区块四项都是-1
func (a api) GetBlockInclusionStats(ctx *rpctypes.Context, fromHeight, toHeight uint64, limit int) (*ResultBlockStats, error) {
	limit, err := a.sanitizeLimit(limit)
	if err != nil {
		return nil, err
	}
	blocks, err := env.Store.GetBlocksBetweenHeights(fromHeight, toHeight, limit)
	if err != nil {
		return nil, err
	}

	stats := make([]ResultBlockLatency, 0, len(blocks))
	for _, block := range blocks {
		latencies := make([]float64, 0, len(block.Transactions))
		for _, tx := range block.Transactions {
			latency := float64(block.Timestamp - tx.Timestamp)
			if latency > 0 {
				latencies = append(latencies, latency/1000)
			}
		}
		stats = append(stats, ResultBlockLatency{
			BlockID:          block.ID,
			Height:           block.Height,
			Timestamp:        block.Timestamp,
			TransactionCount: len(block.Transactions),
			MaxTxLatency:     utils.Max(latencies...),
			MinTxLatency:     utils.Min(latencies...),
			MeanTxLatency:    utils.Mean(latencies...),
			AvgTxLatency:     utils.Avg(latencies...),
		})
	}
	return &ResultBlockStats{Blocks: stats}, nil
}
