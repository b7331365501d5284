package builders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/config"
	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
)

func TestRegisteredTypes(t *testing.T) {
	assert.Subset(t, config.SupportedTypes(), []string{"filter", "rerank.dedup", "rerank.sort", "rerank.topn"})

	cfg := &pipeline.Config{}
	cfg.Pipeline.Nodes = []pipeline.NodeConfig{{Type: "rerank.sort"}, {Type: "rerank.unknown"}}
	err := config.ValidatePipelineConfig(cfg)
	require.Error(t, err)
	assert.True(t, core.IsInvalidConfig(err))
	assert.Contains(t, err.Error(), "rerank.unknown")

	cfg.Pipeline.Nodes = []pipeline.NodeConfig{{Type: ""}, {Type: "rerank.nope"}}
	err = config.ValidatePipelineConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 0 has no type")
	assert.Contains(t, err.Error(), "node 1: unsupported type")

	assert.Error(t, config.ValidatePipelineConfig(&pipeline.Config{}))
	cfg.Pipeline.Nodes = []pipeline.NodeConfig{{Type: "rerank.sort"}, {Type: "rerank.dedup"}}
	assert.NoError(t, config.ValidatePipelineConfig(cfg))
}

func TestBuildFromConfig(t *testing.T) {
	cfg := &pipeline.Config{}
	cfg.Pipeline.Nodes = []pipeline.NodeConfig{
		{Type: "rerank.sort"},
		{Type: "filter", Config: map[string]interface{}{
			"filters": []interface{}{
				map[string]interface{}{"type": "items"},
				map[string]interface{}{"type": "expr", "expr": "candidate.score > -3.0"},
			},
		}},
		{Type: "rerank.dedup"},
		{Type: "rerank.topn", Config: map[string]interface{}{"n": 2}},
	}

	// 没有绑定物品集合时 items 过滤器不可用
	_, err := cfg.BuildPipeline(config.DefaultFactory())
	require.Error(t, err)

	factory := config.DefaultFactory()
	factory.Register("filter", FilterNodeBuilder([]string{"A", "B", "C"}))
	p, err := cfg.BuildPipeline(factory)
	require.NoError(t, err)

	cs := []*core.Candidate{
		core.NewCandidate("C", -4, 0),
		core.NewCandidate("X", -1, 1),
		core.NewCandidate("B", -2, 2),
		core.NewCandidate("A", -0.5, 3),
		core.NewCandidate("B", -2.5, 4),
	}
	out, err := p.Run(context.Background(), &core.EvalContext{}, cs)
	require.NoError(t, err)
	got := make([]string, 0, len(out))
	for _, c := range out {
		got = append(got, c.ID)
	}
	assert.Equal(t, []string{"A", "B"}, got)
}

func TestBuildErrors(t *testing.T) {
	_, err := BuildTopNNode(map[string]interface{}{"n": -1})
	require.Error(t, err)

	b := FilterNodeBuilder(nil)
	_, err = b(map[string]interface{}{})
	require.Error(t, err)
	_, err = b(map[string]interface{}{"filters": []interface{}{map[string]interface{}{"type": "nope"}}})
	require.Error(t, err)
	_, err = b(map[string]interface{}{"filters": []interface{}{map[string]interface{}{"type": "expr", "expr": "1 +"}}})
	require.Error(t, err)
	_, err = BuildTopNNode(map[string]interface{}{"n": 2.5})
	require.Error(t, err)
	_, err = b(map[string]interface{}{"filters": []interface{}{map[string]interface{}{"type": "items", "items": []interface{}{1}}}})
	require.Error(t, err)
}

func TestItemsFilterExplicitList(t *testing.T) {
	node, err := FilterNodeBuilder(nil)(map[string]interface{}{
		"filters": []interface{}{
			map[string]interface{}{"type": "items", "items": []interface{}{"A"}},
		},
	})
	require.NoError(t, err)

	out, err := node.Process(context.Background(), &core.EvalContext{}, []*core.Candidate{
		core.NewCandidate("A", -1, 0),
		core.NewCandidate("B", -2, 1),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].ID)
}
