package rerank

import (
	"context"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，通常放在去重之后，把列表截到需要评估的深度。
type TopNNode struct {
	// N 要保留的候选数量；N <= 0 时不截断
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.EvalContext,
	candidates []*core.Candidate,
) ([]*core.Candidate, error) {
	if n.N <= 0 || len(candidates) <= n.N {
		return candidates, nil
	}
	return candidates[:n.N], nil
}
