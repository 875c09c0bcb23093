package metric

// MetricItem - 一个子系统（mempool、consensus…）对应一个MetricItem，
// 由各子系统自己维护计数，这里只负责按label汇总暴露
type MetricItem interface {
	// JSONString returns the current counters as one JSON object.
	JSONString() string
}
