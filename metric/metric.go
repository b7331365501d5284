// Package metric 实现 Top-K 排序指标：hit@k 与 ndcg@k。
//
// 指标名在启动时一次性解析为类型化的 Metric，批次内只做数值计算。
package metric

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rushteam/receval/core"
)

// Kind 指标类型。
type Kind int

const (
	KindHit Kind = iota + 1
	KindNDCG
)

func (k Kind) String() string {
	switch k {
	case KindHit:
		return "hit"
	case KindNDCG:
		return "ndcg"
	default:
		return "unknown"
	}
}

// Metric 是一个类型化的指标，例如 HitAt(5)、NDCGAt(10)。
type Metric struct {
	Kind Kind
	K    int

	// name 是用户给出的原始写法，作为结果 key
	name string
}

// HitAt 返回 hit@k。
func HitAt(k int) Metric { return Metric{Kind: KindHit, K: k, name: fmt.Sprintf("hit@%d", k)} }

// NDCGAt 返回 ndcg@k。
func NDCGAt(k int) Metric { return Metric{Kind: KindNDCG, K: k, name: fmt.Sprintf("ndcg@%d", k)} }

// Name 返回结果 key。
func (m Metric) Name() string {
	if m.name != "" {
		return m.name
	}
	return fmt.Sprintf("%s@%d", m.Kind, m.K)
}

func (m Metric) String() string { return m.Name() }

// Parse 解析 "<kind>@<k>"，kind 不区分大小写，k 必须是正整数。
func Parse(name string) (Metric, error) {
	raw := strings.TrimSpace(name)
	kind, kStr, ok := strings.Cut(raw, "@")
	if !ok {
		return Metric{}, unknownMetric(name)
	}
	k, err := strconv.Atoi(kStr)
	if err != nil || k <= 0 {
		return Metric{}, unknownMetric(name)
	}
	switch strings.ToLower(kind) {
	case "hit":
		return Metric{Kind: KindHit, K: k, name: raw}, nil
	case "ndcg":
		return Metric{Kind: KindNDCG, K: k, name: raw}, nil
	default:
		return Metric{}, unknownMetric(name)
	}
}

// ParseList 解析逗号分隔的指标列表，重复项只保留第一次出现。
func ParseList(list string) ([]Metric, error) {
	var out []Metric
	seen := make(map[string]bool)
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		m, err := Parse(part)
		if err != nil {
			return nil, err
		}
		if seen[m.Name()] {
			continue
		}
		seen[m.Name()] = true
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, core.NewConfigError(core.ModuleMetric, fmt.Sprintf("metric: no metrics in %q", list))
	}
	return out, nil
}

// Names 返回指标名列表，保持配置顺序。
func Names(metrics []Metric) []string {
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.Name())
	}
	return names
}

// MaxK 返回所有指标中最大的 k，用于确定截断深度。
func MaxK(metrics []Metric) int {
	maxK := 0
	for _, m := range metrics {
		if m.K > maxK {
			maxK = m.K
		}
	}
	return maxK
}

func unknownMetric(name string) error {
	return core.NewConfigError(core.ModuleMetric, fmt.Sprintf("metric: unknown metric %q", name))
}

// Score 计算单个样本的指标值。rank 是 target 的位置（从 1 开始），0 表示不在列表中。
func (m Metric) Score(rank int) float64 {
	if rank <= 0 || rank > m.K {
		return 0
	}
	switch m.Kind {
	case KindHit:
		return 1
	case KindNDCG:
		return 1 / math.Log2(float64(rank)+1)
	default:
		return 0
	}
}

// Compute 返回各指标在一批样本上的求和（未取平均）。
func Compute(lists []core.RankedList, metrics []Metric) map[string]float64 {
	sums := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		sums[m.Name()] = 0
	}
	for _, l := range lists {
		rank := l.Rank()
		if rank == 0 {
			continue
		}
		for _, m := range metrics {
			sums[m.Name()] += m.Score(rank)
		}
	}
	return sums
}
