package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	tmjson "github.com/tendermint/tendermint/libs/json"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"ldpos_chain/rpc"
	"ldpos_chain/types"
)

// 公开API每次最多返回这么多区块
const fetchBatchLimit = 100

type statistics struct {
	TxsThroughput    metrics.Histogram `json:"txs_per_sec"`
	BlocksThroughput metrics.Histogram `json:"blocks_per_sec"`
}

// calculateStatistics 把跑压测期间新落链的区块按秒分桶，
// 统计每秒的出块数和上链交易数
func calculateStatistics(
	endpoint string,
	minHeight uint64,
	timeStart time.Time,
	duration int,
) (*statistics, error) {
	stats := &statistics{
		BlocksThroughput: metrics.NewHistogram(metrics.NewUniformSample(1000)),
		TxsThroughput:    metrics.NewHistogram(metrics.NewUniformSample(1000)),
	}

	var (
		numBlocksPerSec = make(map[int64]int64)
		numTxsPerSec    = make(map[int64]int64)
	)
	// 没出块的秒也要计进均值
	for i := int64(0); i < int64(duration); i++ {
		numBlocksPerSec[i] = 0
		numTxsPerSec[i] = 0
	}

	maxHeight, err := fetchMaxBlockHeight(endpoint)
	if err != nil {
		return nil, err
	}

	from := minHeight
fetch:
	for from < maxHeight {
		blocks, err := fetchBlocksBetween(endpoint, from, maxHeight)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			break
		}
		for _, b := range blocks {
			from = b.Height

			sec := b.Timestamp/1000 - timeStart.Unix()
			if sec < 0 {
				continue
			}
			if sec >= int64(duration) {
				break fetch
			}
			numBlocksPerSec[sec]++
			numTxsPerSec[sec] += int64(len(b.Transactions))
		}
	}

	for _, n := range numBlocksPerSec {
		stats.BlocksThroughput.Update(n)
	}
	for _, n := range numTxsPerSec {
		stats.TxsThroughput.Update(n)
	}

	return stats, nil
}

func fetchMaxBlockHeight(endpoint string) (uint64, error) {
	result := new(rpc.ResultMaxBlockHeight)
	if err := rpcCall(endpoint, "getMaxBlockHeight", url.Values{}, result); err != nil {
		return 0, errors.Wrap(err, "getMaxBlockHeight failed")
	}
	return result.Height, nil
}

// fetchBlocksBetween 拉(from, to]里最早的一批区块，按高度升序
func fetchBlocksBetween(endpoint string, from, to uint64) ([]*types.Block, error) {
	params := url.Values{}
	params.Set("fromHeight", strconv.FormatUint(from, 10))
	params.Set("toHeight", strconv.FormatUint(to, 10))
	params.Set("limit", strconv.Itoa(fetchBatchLimit))

	result := new(rpc.ResultBlocks)
	if err := rpcCall(endpoint, "getBlocksBetweenHeights", params, result); err != nil {
		return nil, errors.Wrap(err, "getBlocksBetweenHeights failed")
	}
	return result.Blocks, nil
}

func rpcCall(endpoint, method string, params url.Values, result interface{}) error {
	u := url.URL{Scheme: "http", Host: endpoint, Path: "/" + method, RawQuery: params.Encode()}

	resp, err := http.Get(u.String())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	response := new(rpctypes.RPCResponse)
	if err := json.Unmarshal(body, response); err != nil {
		return err
	}
	if response.Error != nil {
		return response.Error
	}
	return tmjson.Unmarshal(response.Result, result)
}

func printStatistics(stats *statistics, outputFormat string) {
	if outputFormat == "json" {
		result, err := json.Marshal(struct {
			TxsThroughput    float64 `json:"txs_per_sec_avg"`
			BlocksThroughput float64 `json:"blocks_per_sec_avg"`
		}{stats.TxsThroughput.Mean(), stats.BlocksThroughput.Mean()})

		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		fmt.Println(string(result))
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', 0)
		fmt.Fprintln(w, "Stats\tAvg\tStdDev\tMax\tTotal\t")
		fmt.Fprintln(w, fmt.Sprintf("Txs/sec\t%.0f\t%.0f\t%d\t%d\t",
			stats.TxsThroughput.Mean(),
			stats.TxsThroughput.StdDev(),
			stats.TxsThroughput.Max(),
			stats.TxsThroughput.Sum()))
		fmt.Fprintln(w, fmt.Sprintf("Blocks/sec\t%.3f\t%.3f\t%d\t%d\t",
			stats.BlocksThroughput.Mean(),
			stats.BlocksThroughput.StdDev(),
			stats.BlocksThroughput.Max(),
			stats.BlocksThroughput.Sum()))
		w.Flush()
	}
}
