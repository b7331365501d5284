package dataset

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rushteam/receval/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// slowCollator 以逆序延迟渲染，模拟 worker 乱序完成。
type slowCollator struct {
	inflight atomic.Int32
	peak     atomic.Int32
	failAt   int // 样本 Index 等于 failAt 时失败，-1 表示不失败
}

func (c *slowCollator) Collate(promptID int, examples []*core.Example) (*core.Batch, error) {
	cur := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if cur <= p || c.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	first := examples[0].Index
	time.Sleep(time.Duration(10-first%10) * time.Millisecond)
	if first == c.failAt {
		return nil, errors.New("render failed")
	}
	b := &core.Batch{PromptID: promptID, Examples: examples}
	for _, ex := range examples {
		b.Targets = append(b.Targets, ex.Target)
	}
	return b, nil
}

func makeExamples(n int) []*core.Example {
	out := make([]*core.Example, n)
	for i := range out {
		out[i] = &core.Example{Index: i, Target: string(rune('a' + i%26))}
	}
	return out
}

func collect(t *testing.T, l *Loader, promptID int) []int {
	t.Helper()
	var seen []int
	err := l.Each(context.Background(), promptID, func(step int, b *core.Batch) error {
		assert.Equal(t, len(seen), step)
		assert.Equal(t, promptID, b.PromptID)
		for _, ex := range b.Examples {
			seen = append(seen, ex.Index)
		}
		return nil
	})
	require.NoError(t, err)
	return seen
}

func TestLoaderInOrder(t *testing.T) {
	c := &slowCollator{failAt: -1}
	l := NewLoader(makeExamples(23), c, 2, WithWorkers(4), WithPrefetch(3))
	assert.Equal(t, 12, l.NumBatches())

	seen := collect(t, l, 3)
	want := make([]int, 23)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, seen)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
}

func TestLoaderShuffle(t *testing.T) {
	newLoader := func() *Loader {
		return NewLoader(makeExamples(30), &slowCollator{failAt: -1}, 4, WithWorkers(3), WithShuffle(42))
	}

	a := newLoader()
	first := collect(t, a, 0)
	second := collect(t, a, 1)
	assert.ElementsMatch(t, first, second)
	assert.NotEqual(t, first, second, "每个 prompt 使用新的排列")

	// 相同种子可复现
	b := newLoader()
	assert.Equal(t, first, collect(t, b, 0))
	assert.Equal(t, second, collect(t, b, 1))
}

func TestLoaderCollateError(t *testing.T) {
	l := NewLoader(makeExamples(20), &slowCollator{failAt: 6}, 2, WithWorkers(2))
	var steps int
	err := l.Each(context.Background(), 0, func(int, *core.Batch) error {
		steps++
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collate batch 3")
	assert.LessOrEqual(t, steps, 3)
}

func TestLoaderCallbackError(t *testing.T) {
	l := NewLoader(makeExamples(20), &slowCollator{failAt: -1}, 1, WithWorkers(4))
	boom := errors.New("boom")
	var steps int
	err := l.Each(context.Background(), 0, func(step int, _ *core.Batch) error {
		steps++
		if step == 4 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, steps)
}

func TestLoaderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoader(makeExamples(50), &slowCollator{failAt: -1}, 1, WithWorkers(2))
	err := l.Each(ctx, 0, func(step int, _ *core.Batch) error {
		if step == 2 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderEmpty(t *testing.T) {
	l := NewLoader(nil, &slowCollator{failAt: -1}, 8)
	called := false
	require.NoError(t, l.Each(context.Background(), 0, func(int, *core.Batch) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
