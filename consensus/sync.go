package consensus

import (
	"context"
	"fmt"

	"github.com/tendermint/tendermint/libs/log"

	cfg "ldpos_chain/config"
	"ldpos_chain/slot"
	"ldpos_chain/state"
	"ldpos_chain/types"
)

// Syncer 追链引擎。启动时以及每个slot开始前把本地账本追到网络
// 的最新高度，批量拉取的区块以随块附带的签名证明合法性，不重新
// 收集签名
type Syncer struct {
	config    *cfg.SyncConfig
	blockExec state.BlockExecutor
	network   PeerNetwork
	clock     slot.Clock

	logger log.Logger
}

func NewSyncer(
	config *cfg.SyncConfig,
	blockExec state.BlockExecutor,
	network PeerNetwork,
	clock slot.Clock,
) *Syncer {
	return &Syncer{
		config:    config,
		blockExec: blockExec,
		network:   network,
		clock:     clock,
		logger:    log.NewNopLogger(),
	}
}

func (sc *Syncer) SetLogger(logger log.Logger) {
	if logger != nil {
		sc.logger = logger
	}
}

// CatchUp 反复向网络拉取本地缺失的区块直到连续若干次空响应确认
// 已到链头。返回追完后的链状态和本轮新增的区块数。
//
// 拉回的每个批次先检查previousBlockId链接是否延续本地链头，再抽样
// 询问一圈peer批尾区块是否被大多数持有；任一不满足都丢弃批次。
// 验证失败中止本轮但保留已追上的进度
func (sc *Syncer) CatchUp(ctx context.Context, st state.State) (state.State, int, error) {
	if sc.network == nil {
		return st, 0, nil
	}

	var (
		added         int
		failures      int
		confirmations int
	)

	for {
		select {
		case <-ctx.Done():
			return st, added, nil
		default:
		}

		blocks, err := sc.network.RequestBlocksFromHeight(st.Height+1, sc.config.FetchBlockLimit)
		if err != nil || len(blocks) > sc.config.FetchBlockLimit {
			if err == nil {
				err = fmt.Errorf("peer returned %d blocks, limit is %d", len(blocks), sc.config.FetchBlockLimit)
			}
			failures++
			sc.logger.Info("Block fetch failed", "height", st.Height+1, "failures", failures, "err", err)
			if failures >= sc.config.MaxConsecutiveBlockFetchFailures {
				return st, added, fmt.Errorf("too many consecutive block fetch failures: %w", err)
			}
			if !sc.clock.Sleep(ctx, sc.config.FetchBlockPause) {
				return st, added, nil
			}
			continue
		}
		failures = 0

		if len(blocks) == 0 {
			// 空响应视作一次链头确认
			confirmations++
			if confirmations >= sc.config.FetchBlockEndConfirmations {
				sc.logger.Debug("Catch up finished", "height", st.Height, "added", added)
				return st, added, nil
			}
			if !sc.clock.Sleep(ctx, sc.config.FetchBlockPause) {
				return st, added, nil
			}
			continue
		}
		confirmations = 0

		if !linksToTip(blocks, st.LastBlockID) {
			// 链接断裂的批次按一次拉取失败计，免得坏peer把循环拖死
			failures++
			sc.logger.Info("Discarding block batch with broken links",
				"height", st.Height+1, "count", len(blocks))
			if failures >= sc.config.MaxConsecutiveBlockFetchFailures {
				return st, added, fmt.Errorf("too many consecutive block fetch failures: bad batch links")
			}
			if !sc.clock.Sleep(ctx, sc.config.FetchBlockPause) {
				return st, added, nil
			}
			continue
		}

		// 批尾区块要被抽到的peer中的大多数持有，否则判定本批出自
		// 少数派分支，丢弃并结束本轮追链
		last := blocks[len(blocks)-1]
		confirmed, sampled := sc.network.SampleHasBlock(last.ID, sc.config.CatchUpConsensusPollCount)
		if sampled > 0 && float64(confirmed)/float64(sampled) < sc.config.CatchUpConsensusMinRatio {
			sc.logger.Info("Block batch lacks network consensus",
				"block", last.ID, "confirmed", confirmed, "sampled", sampled)
			return st, added, nil
		}

		for _, block := range blocks {
			if err := block.ValidateBasic(); err != nil {
				return st, added, fmt.Errorf("invalid block at height %d: %w", block.Height, err)
			}
			// 交易数下限是锻造循环的本地策略，已凑齐法定签名的历史
			// 区块不再用它复核，否则调高下限的节点会卡在老区块上
			if _, err := sc.blockExec.VerifyBlock(st, block); err != nil {
				return st, added, fmt.Errorf("block %v failed verification: %w", block.ID, err)
			}
			newState, err := sc.blockExec.ApplyBlock(st, block, true)
			if err != nil {
				return st, added, fmt.Errorf("block %v failed to apply: %w", block.ID, err)
			}
			st = newState
			added++
		}
		sc.logger.Debug("Applied block batch", "height", st.Height, "count", len(blocks))

		if !sc.clock.Sleep(ctx, sc.config.FetchBlockPause) {
			return st, added, nil
		}
	}
}

// linksToTip 检查批次是否从本地链头无缝延续且内部链接完整
func linksToTip(blocks []*types.Block, tipID string) bool {
	if blocks[0].PreviousBlockID != tipID {
		return false
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].PreviousBlockID != blocks[i-1].ID {
			return false
		}
	}
	return true
}
