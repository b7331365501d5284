package topk

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/filter"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		marker string
		want   string
	}{
		{name: "plain", text: "<a_1><b_2>", want: "<a_1><b_2>"},
		{name: "spaces removed", text: " <a_1> <b_2>\n", want: "<a_1><b_2>"},
		{name: "after marker", text: "### Response: <a_1><b_2>", marker: "Response:", want: "<a_1><b_2>"},
		{name: "last marker wins", text: "Response: x Response: <c_3>", marker: "Response:", want: "<c_3>"},
		{name: "marker missing", text: "<c_3>", marker: "Response:", want: "<c_3>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseItem(tt.text, tt.marker))
		})
	}
}

func TestExtract_DedupScenario(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{})}
	got, err := e.Extract(context.Background(), 0,
		[]string{"A", "B", "A", "C"},
		[]float64{-0.1, -0.2, -0.3, -0.4},
		[]string{"B"}, 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"A", "B", "C"}, got[0].Items)
	assert.Equal(t, 2, got[0].Rank())
}

func TestExtract_SortIsStable(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{})}
	got, err := e.Extract(context.Background(), 0,
		[]string{"x", "y", "z", "w"},
		[]float64{-2, -1, -1, -3},
		[]string{"z"}, 4)
	require.NoError(t, err)
	// y 与 z 同分，保持 beam 顺序
	assert.Equal(t, []string{"y", "z", "x", "w"}, got[0].Items)
}

func TestExtract_GroupsPerExample(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{Depth: 2})}
	got, err := e.Extract(context.Background(), 1,
		[]string{"a", "b", "c", "d", "e", "f"},
		[]float64{-3, -2, -1, -1, -2, -3},
		[]string{"a", "d"}, 3)
	require.NoError(t, err)

	want := []core.RankedList{
		{Items: []string{"c", "b"}, Target: "a"},
		{Items: []string{"d", "e"}, Target: "d"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_ItemFilterKeepsOrder(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{Items: []string{"A", "C", "D"}})}
	got, err := e.Extract(context.Background(), 0,
		[]string{"D", "X", "A", "C"},
		[]float64{-1, -2, -3, -4},
		[]string{"C"}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A", "C"}, got[0].Items)
}

func TestExtract_FilterRemovesAll(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{Items: []string{"Z"}})}
	got, err := e.Extract(context.Background(), 0,
		[]string{"A", "B"},
		[]float64{-1, -2},
		[]string{"A"}, 2)
	require.NoError(t, err)
	assert.Empty(t, got[0].Items)
	assert.Equal(t, 0, got[0].Rank())
}

func TestExtract_ExprFilter(t *testing.T) {
	expr, err := filter.NewExprFilter(`candidate.score > -2.5`)
	require.NoError(t, err)

	e := &Extractor{Pipeline: DefaultPipeline(Options{Filters: []filter.Filter{expr}})}
	got, err := e.Extract(context.Background(), 0,
		[]string{"A", "B", "C"},
		[]float64{-1, -2, -3},
		[]string{"C"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got[0].Items)
}

func TestExtract_LengthMismatch(t *testing.T) {
	e := &Extractor{Pipeline: DefaultPipeline(Options{})}

	_, err := e.Extract(context.Background(), 0, []string{"A", "B", "C"}, []float64{0, 0, 0}, []string{"A", "B"}, 2)
	require.Error(t, err)
	assert.True(t, core.IsInvalidInput(err))

	_, err = e.Extract(context.Background(), 0, []string{"A"}, []float64{0}, []string{"A"}, 0)
	require.Error(t, err)
}
