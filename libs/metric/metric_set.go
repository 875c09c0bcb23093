package metric

import (
	"errors"
	"sync"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
)

func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics: make(map[string]MetricItem),
	}
}

// MetricSet 节点内所有MetricItem的注册表，label唯一
type MetricSet struct {
	mtx     sync.RWMutex
	metrics map[string]MetricItem
}

// SetMetrics - 按label注册一个MetricItem，label已存在时返回error
func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, existed := ms.metrics[label]; existed {
		return ErrMetricLabelExist
	}
	ms.metrics[label] = item
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	_, existed := ms.metrics[label]
	ms.mtx.RUnlock()
	return existed
}

// GetMetrics 返回label对应的MetricItem，未注册时返回nil
func (ms *MetricSet) GetMetrics(label string) MetricItem {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	return ms.metrics[label]
}

// Labels 返回全部已注册的label
func (ms *MetricSet) Labels() []string {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()

	keys := make([]string, 0, len(ms.metrics))
	for k := range ms.metrics {
		keys = append(keys, k)
	}
	return keys
}
