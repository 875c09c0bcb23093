package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx           sync.RWMutex
	PendingNum    int   `json:"pending_num"`     // mempool中等待打包的交易总数
	PendingBytes  int64 `json:"pending_bytes"`   // 等待打包交易的编码总大小
	StreamNum     int   `json:"stream_num"`      // 活跃的发送者stream数
	AcceptedNum   int64 `json:"accepted_num"`    // 启动以来接受的交易总数
	RejectedNum   int64 `json:"rejected_num"`    // 启动以来拒绝的交易总数
	RecheckFailed int64 `json:"recheck_failed"`  // 区块提交后重放被清除的交易总数
	ExpiredNum    int64 `json:"expired_num"`     // 超时被清除的交易总数
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkPending(num int, bytes int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.PendingNum = num
	mm.PendingBytes = bytes
}

func (mm *memMetric) MarkStreams(num int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.StreamNum = num
}

func (mm *memMetric) MarkAccepted() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.AcceptedNum++
}

func (mm *memMetric) MarkRejected() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.RejectedNum++
}

func (mm *memMetric) MarkRecheckFailed(num int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.RecheckFailed += num
}

func (mm *memMetric) MarkExpired(num int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.ExpiredNum += num
}
