package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
)

// ScoreSortNode 按分数降序稳定排序；分数相同时保持原始 beam 顺序。
type ScoreSortNode struct{}

func (n *ScoreSortNode) Name() string {
	return "rerank.sort"
}

func (n *ScoreSortNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *ScoreSortNode) Process(
	_ context.Context,
	_ *core.EvalContext,
	candidates []*core.Candidate,
) ([]*core.Candidate, error) {
	out := make([]*core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}
