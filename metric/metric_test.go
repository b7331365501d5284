package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/core"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantK    int
		wantName string
		wantErr  bool
	}{
		{name: "hit", input: "hit@5", wantKind: KindHit, wantK: 5, wantName: "hit@5"},
		{name: "ndcg", input: "ndcg@10", wantKind: KindNDCG, wantK: 10, wantName: "ndcg@10"},
		{name: "case insensitive keeps spelling", input: "NDCG@3", wantKind: KindNDCG, wantK: 3, wantName: "NDCG@3"},
		{name: "surrounding spaces", input: " hit@1 ", wantKind: KindHit, wantK: 1, wantName: "hit@1"},
		{name: "unknown kind", input: "recall@5", wantErr: true},
		{name: "missing k", input: "hit", wantErr: true},
		{name: "zero k", input: "hit@0", wantErr: true},
		{name: "non numeric k", input: "ndcg@ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInvalidConfig(err))
				assert.Contains(t, err.Error(), tt.input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, m.Kind)
			assert.Equal(t, tt.wantK, m.K)
			assert.Equal(t, tt.wantName, m.Name())
		})
	}
}

func TestParseList(t *testing.T) {
	ms, err := ParseList("hit@1,hit@5, ndcg@5,hit@5,")
	require.NoError(t, err)
	assert.Equal(t, []string{"hit@1", "hit@5", "ndcg@5"}, Names(ms))
	assert.Equal(t, 5, MaxK(ms))

	_, err = ParseList("hit@5,mrr@10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mrr@10"`)

	_, err = ParseList(" , ")
	require.Error(t, err)
}

func TestScore(t *testing.T) {
	for k := 1; k <= 5; k++ {
		for rank := 0; rank <= 7; rank++ {
			hit := HitAt(k).Score(rank)
			ndcg := NDCGAt(k).Score(rank)
			inTopK := rank >= 1 && rank <= k

			assert.Contains(t, []float64{0, 1}, hit)
			assert.Equal(t, inTopK, hit == 1, "hit@%d rank=%d", k, rank)
			assert.Equal(t, inTopK, ndcg > 0, "ndcg@%d rank=%d", k, rank)
			if inTopK {
				assert.InDelta(t, 1/math.Log2(float64(rank)+1), ndcg, 1e-12)
			}
		}
	}
}

func TestCompute_DedupScenario(t *testing.T) {
	lists := []core.RankedList{{Items: []string{"A", "B", "C"}, Target: "B"}}
	ms := []Metric{HitAt(3), NDCGAt(3)}

	got := Compute(lists, ms)

	assert.Equal(t, 1.0, got["hit@3"])
	assert.InDelta(t, 0.6309, got["ndcg@3"], 1e-4)
}

func TestCompute_EmptyListContributesZero(t *testing.T) {
	lists := []core.RankedList{
		{Items: nil, Target: "A"},
		{Items: []string{"X", "Y"}, Target: "A"},
	}
	got := Compute(lists, []Metric{HitAt(5), NDCGAt(5)})
	assert.Equal(t, map[string]float64{"hit@5": 0, "ndcg@5": 0}, got)
}

func TestCompute_Deterministic(t *testing.T) {
	lists := []core.RankedList{
		{Items: []string{"a", "b", "c", "d"}, Target: "d"},
		{Items: []string{"b", "a"}, Target: "b"},
	}
	ms := []Metric{HitAt(1), HitAt(4), NDCGAt(4)}
	first := Compute(lists, ms)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(lists, ms))
	}
}

func TestAccumulator(t *testing.T) {
	ms := []Metric{HitAt(5)}
	acc := NewAccumulator(ms)

	assert.Equal(t, map[string]float64{"hit@5": 0}, acc.Snapshot())

	batch := Compute([]core.RankedList{
		{Items: []string{"x", "t"}, Target: "t"},
		{Items: []string{"x"}, Target: "t"},
	}, ms)
	assert.Equal(t, 1.0, batch["hit@5"])

	acc.Add(batch, 2)
	assert.Equal(t, 2, acc.Total())
	assert.Equal(t, 0.5, acc.Finalize()["hit@5"])
	assert.Equal(t, 1.0, acc.Sums()["hit@5"])
}
