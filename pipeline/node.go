package pipeline

import (
	"context"

	"github.com/rushteam/receval/core"
)

// Kind 用于标记 Node 类型，方便观测/编排（例如按阶段打点）。
type Kind string

const (
	KindFilter      Kind = "filter"      // 过滤阶段：剔除不在合法物品集合中的候选
	KindReRank      Kind = "rerank"      // 重排阶段：按分数排序、去重、截断
	KindPostProcess Kind = "postprocess" // 后处理阶段：补充标签等
)

// Node 是 Top-K 抽取链路的最小可扩展单元。
// 统一采用“输入 candidates -> 输出 candidates”的形态；Node 必须保持未被移除候选的相对顺序，
// 除非它本身就是排序 Node。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		ectx *core.EvalContext,
		candidates []*core.Candidate,
	) ([]*core.Candidate, error)
}

// NodeBuilder 根据配置构建 Node。
type NodeBuilder func(map[string]interface{}) (Node, error)
