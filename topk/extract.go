// Package topk 把一批 beam search 的扁平输出整理成每个样本的有序候选列表。
package topk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/filter"
	"github.com/rushteam/receval/pipeline"
	"github.com/rushteam/receval/pkg/utils"
	"github.com/rushteam/receval/rerank"
)

// Options 用于构建默认抽取链路。
type Options struct {
	// Items 合法物品集合；非空时过滤掉不在集合中的候选
	Items []string

	// Filters 额外的过滤器（如 CEL 表达式），排在物品集合过滤之后
	Filters []filter.Filter

	// Depth 截断深度，<= 0 表示不截断
	Depth int
}

// DefaultPipeline 返回默认链路：排序 → 过滤 → 去重 → 截断。
func DefaultPipeline(opts Options) *pipeline.Pipeline {
	p := &pipeline.Pipeline{}
	p.Append(&rerank.ScoreSortNode{})

	var filters []filter.Filter
	if opts.Items != nil {
		filters = append(filters, filter.NewItemSetFilter(opts.Items))
	}
	filters = append(filters, opts.Filters...)
	if len(filters) > 0 {
		p.Append(&filter.FilterNode{Filters: filters})
	}

	p.Append(&rerank.DedupNode{})
	if opts.Depth > 0 {
		p.Append(&rerank.TopNNode{N: opts.Depth})
	}
	return p
}

// Extractor 把扁平的生成文本切分成样本组并交给 Pipeline 处理。
type Extractor struct {
	Pipeline *pipeline.Pipeline

	// ResponseMarker 非空时只保留最后一个标记之后的文本
	ResponseMarker string

	Task string
}

// Extract 处理一个批次。
// texts 与 scores 长度必须都等于 len(targets) × numBeams，同一样本的 beam 连续排列。
func (e *Extractor) Extract(
	ctx context.Context,
	promptID int,
	texts []string,
	scores []float64,
	targets []string,
	numBeams int,
) ([]core.RankedList, error) {
	if numBeams <= 0 {
		return nil, fmt.Errorf("topk: num beams must be positive, got %d", numBeams)
	}
	want := len(targets) * numBeams
	if len(texts) != want || len(scores) != want {
		return nil, core.NewDomainError(core.ModuleRunner, core.ErrorCodeInvalidInput,
			fmt.Sprintf("topk: expected %d sequences and scores for %d targets × %d beams, got %d sequences and %d scores",
				want, len(targets), numBeams, len(texts), len(scores)))
	}

	out := make([]core.RankedList, 0, len(targets))
	for b, target := range targets {
		group := make([]*core.Candidate, 0, numBeams)
		for j := 0; j < numBeams; j++ {
			idx := b*numBeams + j
			c := core.NewCandidate(ParseItem(texts[idx], e.ResponseMarker), scores[idx], j)
			c.PutLabel("beam", utils.Label{Value: strconv.Itoa(j), Source: "generate"})
			group = append(group, c)
		}

		ectx := &core.EvalContext{Task: e.Task, PromptID: promptID, Target: target}
		ranked := group
		if e.Pipeline != nil {
			var err error
			ranked, err = e.Pipeline.Run(ctx, ectx, group)
			if err != nil {
				return nil, fmt.Errorf("topk: example %d: %w", b, err)
			}
		}

		items := make([]string, 0, len(ranked))
		for _, c := range ranked {
			items = append(items, c.ID)
		}
		out = append(out, core.RankedList{Items: items, Target: target})
	}
	return out, nil
}

// ParseItem 从解码文本中取出物品标识：截取最后一个 marker 之后的部分并去掉全部空白。
func ParseItem(text, marker string) string {
	if marker != "" {
		if i := strings.LastIndex(text, marker); i >= 0 {
			text = text[i+len(marker):]
		}
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
