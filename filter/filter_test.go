package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/core"
)

func run(t *testing.T, n *FilterNode, ectx *core.EvalContext, ids ...string) []string {
	t.Helper()
	cs := make([]*core.Candidate, 0, len(ids))
	for i, id := range ids {
		cs = append(cs, core.NewCandidate(id, -float64(i), i))
	}
	out, err := n.Process(context.Background(), ectx, cs)
	require.NoError(t, err)
	got := make([]string, 0, len(out))
	for _, c := range out {
		got = append(got, c.ID)
	}
	return got
}

func TestItemSetFilter_PreservesOrder(t *testing.T) {
	n := &FilterNode{Filters: []Filter{NewItemSetFilter([]string{"a", "c", "e"})}}
	assert.Equal(t, []string{"e", "c", "a"}, run(t, n, nil, "e", "b", "c", "d", "a"))
	assert.Empty(t, run(t, n, nil, "x", "y"))
}

func TestFilterNode_LabelsFilteredCandidate(t *testing.T) {
	n := &FilterNode{Filters: []Filter{NewItemSetFilter([]string{"a"})}}
	c := core.NewCandidate("z", 0, 0)
	out, err := n.Process(context.Background(), nil, []*core.Candidate{c})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "filter.items", c.Labels["filtered"].Source)
}

func TestExprFilter(t *testing.T) {
	tests := []struct {
		name string
		expr string
		ectx *core.EvalContext
		want []string
	}{
		{name: "score threshold", expr: `candidate.score >= -1.0`, want: []string{"a", "b"}},
		{name: "id prefix", expr: `candidate.id.startsWith("<a_")`, want: []string{"<a_1>"}},
		{name: "beam", expr: `candidate.beam < 1`, want: []string{"a"}},
		{name: "prompt id", expr: `ctx.prompt_id == 2`, ectx: &core.EvalContext{PromptID: 2}, want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewExprFilter(tt.expr)
			require.NoError(t, err)
			n := &FilterNode{Filters: []Filter{f}}
			ectx := tt.ectx
			if ectx == nil {
				ectx = &core.EvalContext{}
			}
			input := []string{"a", "b", "c"}
			if tt.name == "id prefix" {
				input = []string{"<a_1>", "<b_1>"}
			}
			assert.Equal(t, tt.want, run(t, n, ectx, input...))
		})
	}
}

func TestExprFilter_CompileErrors(t *testing.T) {
	_, err := NewExprFilter("")
	require.Error(t, err)

	_, err = NewExprFilter("candidate.score >")
	require.Error(t, err)

	_, err = NewExprFilter(`"not a bool"`)
	require.Error(t, err)
}
