package metric

// Accumulator 累加当前 prompt 下各批次的指标和与样本数。
// 只由单个控制循环顺序调用，不做并发保护。
type Accumulator struct {
	metrics []Metric
	sums    map[string]float64
	total   int
}

func NewAccumulator(metrics []Metric) *Accumulator {
	sums := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		sums[m.Name()] = 0
	}
	return &Accumulator{metrics: metrics, sums: sums}
}

// Add 累加一个批次：batch 是 Compute 的结果，n 是该批次的样本数。
func (a *Accumulator) Add(batch map[string]float64, n int) {
	for name, v := range batch {
		a.sums[name] += v
	}
	a.total += n
}

// Total 已累计的样本数。
func (a *Accumulator) Total() int {
	return a.total
}

// Sums 返回当前求和的拷贝。
func (a *Accumulator) Sums() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for k, v := range a.sums {
		out[k] = v
	}
	return out
}

// Snapshot 返回当前的平均值，样本数为 0 时全部为 0。
func (a *Accumulator) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(a.sums))
	for k, v := range a.sums {
		if a.total == 0 {
			out[k] = 0
			continue
		}
		out[k] = v / float64(a.total)
	}
	return out
}

// Finalize 返回最终平均值。
func (a *Accumulator) Finalize() map[string]float64 {
	return a.Snapshot()
}
