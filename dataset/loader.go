package dataset

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rushteam/receval/core"
)

// Loader 按批次遍历测试集：固定数量的 worker 预先渲染批次，
// 最多领先消费者 prefetch 个批次，批次严格按顺序交付。
//
// 同一个 Loader 的 Each 不能并发调用（打乱顺序依赖内部随机源）。
type Loader struct {
	examples  []*core.Example
	collator  BatchCollator
	batchSize int
	workers   int
	prefetch  int
	shuffle   bool
	rng       *rand.Rand
}

// LoaderOption 配置 Loader。
type LoaderOption func(*Loader)

// WithWorkers 渲染批次的 worker 数。
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) { l.workers = n }
}

// WithPrefetch 最多预取的批次数。
func WithPrefetch(n int) LoaderOption {
	return func(l *Loader) { l.prefetch = n }
}

// WithShuffle 每次 Each 使用新的随机排列；seed 固定时排列序列可复现。
func WithShuffle(seed int64) LoaderOption {
	return func(l *Loader) {
		l.shuffle = true
		s := uint64(seed)
		l.rng = rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
	}
}

// NewLoader 创建 Loader；batchSize <= 0 时按 1 处理。
func NewLoader(examples []*core.Example, collator BatchCollator, batchSize int, opts ...LoaderOption) *Loader {
	l := &Loader{
		examples:  examples,
		collator:  collator,
		batchSize: max(batchSize, 1),
		workers:   1,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.workers = max(l.workers, 1)
	if l.prefetch <= 0 {
		l.prefetch = 2 * l.workers
	}
	return l
}

// NumBatches 批次数。
func (l *Loader) NumBatches() int {
	return (len(l.examples) + l.batchSize - 1) / l.batchSize
}

func (l *Loader) order() []int {
	if l.shuffle {
		return l.rng.Perm(len(l.examples))
	}
	idx := make([]int, len(l.examples))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (l *Loader) batch(order []int, i int) []*core.Example {
	lo := i * l.batchSize
	hi := min(lo+l.batchSize, len(order))
	out := make([]*core.Example, 0, hi-lo)
	for _, idx := range order[lo:hi] {
		out = append(out, l.examples[idx])
	}
	return out
}

// Each 用 promptID 渲染每个批次并按顺序交给 fn。
// 渲染错误或 fn 返回错误都会中止遍历；返回前所有 goroutine 均已退出。
func (l *Loader) Each(ctx context.Context, promptID int, fn func(step int, b *core.Batch) error) error {
	n := l.NumBatches()
	if n == 0 {
		return nil
	}
	order := l.order()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, gctx := errgroup.WithContext(runCtx)
	eg.SetLimit(l.workers)
	sem := semaphore.NewWeighted(int64(l.prefetch))

	// 每个批次一个槽位，保证按序交付
	slots := make([]chan *core.Batch, n)
	for i := range slots {
		slots[i] = make(chan *core.Batch, 1)
	}

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 0; i < n; i++ {
			if err := sem.Acquire(gctx, 1); err != nil {
				return
			}
			i := i
			eg.Go(func() error {
				b, err := l.collator.Collate(promptID, l.batch(order, i))
				if err != nil {
					return fmt.Errorf("dataset: collate batch %d: %w", i, err)
				}
				slots[i] <- b
				return nil
			})
		}
	}()

	var fnErr error
	for i := 0; i < n && fnErr == nil; i++ {
		var b *core.Batch
		select {
		case b = <-slots[i]:
		case <-gctx.Done():
		}
		if b == nil {
			break
		}
		sem.Release(1)
		fnErr = fn(i, b)
	}

	cancel()
	<-produced
	if err := eg.Wait(); err != nil {
		return err
	}
	if fnErr != nil {
		return fnErr
	}
	return ctx.Err()
}
