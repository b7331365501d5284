package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/receval/metric"
)

func TestAggregate(t *testing.T) {
	metrics := []metric.Metric{metric.HitAt(1), metric.NDCGAt(5)}
	perPrompt := []map[string]float64{
		{"hit@1": 0.2, "ndcg@5": 0.5},
		{"hit@1": 0.4, "ndcg@5": 0.1},
		{"hit@1": 0.6, "ndcg@5": 0.3},
	}

	s, err := Aggregate("0,1,2", metrics, perPrompt)
	require.NoError(t, err)
	assert.Equal(t, "0,1,2", s.TestPromptIDs)
	assert.InDelta(t, 0.4, s.MeanResults.Values["hit@1"], 1e-12)
	assert.InDelta(t, 0.3, s.MeanResults.Values["ndcg@5"], 1e-12)
	assert.Equal(t, 0.2, s.MinResults.Values["hit@1"])
	assert.Equal(t, 0.6, s.MaxResults.Values["hit@1"])
	assert.Equal(t, 0.1, s.MinResults.Values["ndcg@5"])
	assert.Equal(t, 0.5, s.MaxResults.Values["ndcg@5"])
	require.Len(t, s.AllPromptResults, 3)
	assert.Equal(t, []string{"hit@1", "ndcg@5"}, s.AllPromptResults[1].Names)
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate("0", []metric.Metric{metric.HitAt(1)}, nil)
	assert.Error(t, err)
}

func TestAggregateNegativeAndSingle(t *testing.T) {
	metrics := []metric.Metric{metric.HitAt(1)}
	s, err := Aggregate("3", metrics, []map[string]float64{{"hit@1": 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.MinResults.Values["hit@1"])
	assert.Equal(t, 0.0, s.MaxResults.Values["hit@1"])
}

func TestWriteAndRead(t *testing.T) {
	metrics, err := metric.ParseList("ndcg@10,hit@1")
	require.NoError(t, err)
	s, err := Aggregate("all", metrics, []map[string]float64{{"hit@1": 1, "ndcg@10": 0.5}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results", "nested", "test.json")
	require.NoError(t, Write(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "{\n    \"test_prompt_ids\": \"all\""), text)
	// 指标保持配置顺序
	assert.Less(t, strings.Index(text, "ndcg@10"), strings.Index(text, "hit@1"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "临时文件已清理")

	back, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, s.MeanResults, back.MeanResults)
	assert.Equal(t, s.AllPromptResults, back.AllPromptResults)
}

func TestWriteFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s, err := Aggregate("0", []metric.Metric{metric.HitAt(1)}, []map[string]float64{{"hit@1": 1}})
	require.NoError(t, err)
	err = Write(filepath.Join(blocker, "test.json"), s)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(blocker, "test.json"))
	assert.Error(t, statErr)
}
