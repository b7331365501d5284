package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
	"github.com/rushteam/receval/pkg/utils"
)

// DedupNode 按候选 ID 去重，保留第一次出现（排名最高）的候选。
// 被丢弃的重复 beam 下标会合并到保留者的 "dup_beams" label 上。
// 对同一列表重复执行结果不变。
type DedupNode struct{}

func (n *DedupNode) Name() string {
	return "rerank.dedup"
}

func (n *DedupNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *DedupNode) Process(
	_ context.Context,
	_ *core.EvalContext,
	candidates []*core.Candidate,
) ([]*core.Candidate, error) {
	seen := make(map[string]*core.Candidate, len(candidates))
	out := make([]*core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if first, ok := seen[c.ID]; ok {
			first.PutLabel("dup_beams", utils.Label{Value: strconv.Itoa(c.Beam), Source: "rerank.dedup"})
			continue
		}
		seen[c.ID] = c
		out = append(out, c)
	}
	return out, nil
}
