package filter

import (
	"context"

	"github.com/rushteam/receval/core"
)

// ItemSetFilter 过滤掉不在已知物品集合中的候选（模型生成了不存在的物品标识）。
type ItemSetFilter struct {
	Items map[string]struct{}
}

// NewItemSetFilter 由物品标识列表创建过滤器。
func NewItemSetFilter(items []string) *ItemSetFilter {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return &ItemSetFilter{Items: set}
}

func (f *ItemSetFilter) Name() string {
	return "filter.items"
}

func (f *ItemSetFilter) ShouldFilter(
	_ context.Context,
	_ *core.EvalContext,
	candidate *core.Candidate,
) (bool, error) {
	if candidate == nil {
		return true, nil
	}
	_, ok := f.Items[candidate.ID]
	return !ok, nil
}
