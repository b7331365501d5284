package core

import "github.com/rushteam/receval/pkg/utils"

// Candidate 是一条 beam 输出解析后的候选物品标识，贯穿 Top-K 抽取的各个阶段。
// Score 是模型给出的序列对数似然；Beam 是该候选在 beam 输出中的原始下标，用于稳定排序。
type Candidate struct {
	ID     string
	Score  float64
	Beam   int
	Labels map[string]utils.Label
}

func NewCandidate(id string, score float64, beam int) *Candidate {
	return &Candidate{
		ID:     id,
		Score:  score,
		Beam:   beam,
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (c *Candidate) PutLabel(key string, lbl utils.Label) {
	if c.Labels == nil {
		c.Labels = make(map[string]utils.Label)
	}
	if old, ok := c.Labels[key]; ok {
		c.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	c.Labels[key] = lbl
}

// RankedList 是单个样本剪枝、去重后的有序候选列表，与其真实目标配对，供指标计算使用。
type RankedList struct {
	Items  []string
	Target string
}

// Rank 返回 target 在列表中的位置（从 1 开始），不存在返回 0。
func (l RankedList) Rank() int {
	for i, id := range l.Items {
		if id == l.Target {
			return i + 1
		}
	}
	return 0
}
