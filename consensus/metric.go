package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{}
}

type consensusMetric struct {
	mtx            sync.RWMutex
	Slot           int64  `json:"slot"`             // 锻造循环所在的slot
	SlotStartTime  int64  `json:"slot_start_time"`  // 进入本slot的物理时间（unix毫秒）
	Step           string `json:"step"`             // 锻造循环所处的阶段
	ForgerAddress  string `json:"forger_address"`   // 本slot轮转到的锻造者
	IsLocalForger  bool   `json:"is_local_forger"`  // 本slot的锻造者是否由本节点经营
	ChainHeight    uint64 `json:"chain_height"`     // 本地链头高度
	LastBlockID    string `json:"last_block_id"`    // 本地链头区块id
	SignatureNum   int    `json:"signature_num"`    // 本slot候选区块已收集的签名数
	Bootstrapped   bool   `json:"bootstrapped"`     // 是否完成过首次追链
	SkippedSlots   int64  `json:"skipped_slots"`    // 启动以来被跳过的slot总数
	DoubleForgedAt int64  `json:"double_forged_at"` // 最近一次观察到double forge的slot时间戳
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkSlot(slot int64, start time.Time, forger string, local bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Slot = slot
	cm.SlotStartTime = start.UnixNano() / int64(time.Millisecond)
	cm.ForgerAddress = forger
	cm.IsLocalForger = local
	cm.SignatureNum = 0
}

func (cm *consensusMetric) MarkStep(step string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Step = step
}

func (cm *consensusMetric) MarkChainTip(height uint64, blockID string) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.ChainHeight = height
	cm.LastBlockID = blockID
}

func (cm *consensusMetric) MarkSignatureCount(num int) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	if num > cm.SignatureNum {
		cm.SignatureNum = num
	}
}

func (cm *consensusMetric) MarkBootstrapped() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Bootstrapped = true
}

func (cm *consensusMetric) MarkSkippedSlot() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.SkippedSlots++
}

func (cm *consensusMetric) MarkDoubleForged(timestamp int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.DoubleForgedAt = timestamp
}
