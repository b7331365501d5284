package builders

import (
	"fmt"

	"github.com/rushteam/receval/config"
	"github.com/rushteam/receval/filter"
	"github.com/rushteam/receval/pipeline"
	"github.com/rushteam/receval/pkg/conv"
	"github.com/rushteam/receval/rerank"
)

func init() {
	config.Register("rerank.sort", BuildSortNode)
	config.Register("rerank.dedup", BuildDedupNode)
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("filter", FilterNodeBuilder(nil))
}

func BuildSortNode(map[string]interface{}) (pipeline.Node, error) {
	return &rerank.ScoreSortNode{}, nil
}

func BuildDedupNode(map[string]interface{}) (pipeline.Node, error) {
	return &rerank.DedupNode{}, nil
}

func BuildTopNNode(cfg map[string]interface{}) (pipeline.Node, error) {
	n, err := conv.ConfigInt(cfg, "n", 0)
	if err != nil {
		return nil, fmt.Errorf("rerank.topn: %w", err)
	}
	if n < 0 {
		return nil, fmt.Errorf("rerank.topn: n must be >= 0, got %d", n)
	}
	return &rerank.TopNNode{N: n}, nil
}

// FilterNodeBuilder 返回绑定了物品集合的 filter builder。
// "items" 过滤器可以在配置里给出 items 列表；否则使用绑定的物品集合，
// 两者都没有时报错（物品集合只有加载数据集后才可用）。
func FilterNodeBuilder(items []string) pipeline.NodeBuilder {
	return func(cfg map[string]interface{}) (pipeline.Node, error) {
		filtersConfig, ok := cfg["filters"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("filters not found or invalid")
		}
		filters := make([]filter.Filter, 0, len(filtersConfig))
		for _, fc := range filtersConfig {
			filterMap, ok := fc.(map[string]interface{})
			if !ok {
				continue
			}
			filterType := conv.ConfigGet(filterMap, "type", "")
			switch filterType {
			case "items":
				set, ok, err := conv.ConfigStrings(filterMap, "items")
				if err != nil {
					return nil, fmt.Errorf("items filter: %w", err)
				}
				if !ok {
					set = items
				}
				if set == nil {
					return nil, fmt.Errorf("items filter requires the item vocabulary")
				}
				filters = append(filters, filter.NewItemSetFilter(set))
			case "expr":
				expr := conv.ConfigGet(filterMap, "expr", "")
				f, err := filter.NewExprFilter(expr)
				if err != nil {
					return nil, err
				}
				filters = append(filters, f)
			default:
				return nil, fmt.Errorf("unknown filter type: %s", filterType)
			}
		}
		return &filter.FilterNode{Filters: filters}, nil
	}
}
