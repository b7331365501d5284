// Package runner 驱动一次完整评测：加载模型、逐 prompt 生成打分、聚合并写出结果。
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/receval/config"
	"github.com/rushteam/receval/config/builders"
	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/dataset"
	"github.com/rushteam/receval/filter"
	"github.com/rushteam/receval/metric"
	"github.com/rushteam/receval/pipeline"
	"github.com/rushteam/receval/prompt"
	"github.com/rushteam/receval/report"
	"github.com/rushteam/receval/tokenizer"
	"github.com/rushteam/receval/topk"
)

// State 是 Runner 的生命周期状态。
type State int

const (
	StateUnloaded State = iota
	StateModelReady
	StateGenerating
	StateAggregated
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "UNLOADED"
	case StateModelReady:
		return "MODEL_READY"
	case StateGenerating:
		return "GENERATING"
	case StateAggregated:
		return "AGGREGATED"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// 合法的状态迁移
var transitions = map[State][]State{
	StateUnloaded:   {StateModelReady},
	StateModelReady: {StateGenerating},
	StateGenerating: {StateAggregated},
	StateAggregated: {StateGenerating, StateDone},
}

// TokenizerLoader 按 repo id 打开分词器。
type TokenizerLoader func(repoID string) (core.Tokenizer, error)

func hubTokenizerLoader(cacheDir string) TokenizerLoader {
	return func(repoID string) (core.Tokenizer, error) {
		tok, err := tokenizer.Load(repoID, cacheDir)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
}

// Runner 是评测驱动，非并发安全：同一时刻只有一个 prompt 在生成。
type Runner struct {
	cfg       *config.EvalConfig
	gen       core.Generator
	logger    *zap.Logger
	openTok   TokenizerLoader
	registry  *prompt.Registry
	metrics   []metric.Metric
	promptIDs []int

	state      State
	tok        core.Tokenizer
	data       *dataset.Dataset
	constraint *dataset.Trie
	loader     *dataset.Loader
	extractor  *topk.Extractor
	results    []map[string]float64
}

// Option 配置 Runner。
type Option func(*Runner)

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTokenizerLoader 替换分词器加载方式。
func WithTokenizerLoader(fn TokenizerLoader) Option {
	return func(r *Runner) { r.openTok = fn }
}

// WithRegistry 使用指定的模板注册表（默认由配置构建）。
func WithRegistry(reg *prompt.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// New 创建 Runner，并解析指标与 prompt id；配置错误在这里返回，不会触达模型。
func New(cfg *config.EvalConfig, gen core.Generator, opts ...Option) (*Runner, error) {
	if cfg == nil || gen == nil {
		return nil, core.NewConfigError(core.ModuleRunner, "runner: config and generator are required")
	}
	r := &Runner{
		cfg:     cfg,
		gen:     gen,
		logger:  zap.NewNop(),
		openTok: hubTokenizerLoader(cfg.HFCacheDir),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		reg, err := cfg.Registry()
		if err != nil {
			return nil, err
		}
		r.registry = reg
	}

	var err error
	if r.metrics, err = metric.ParseList(cfg.Metrics); err != nil {
		return nil, err
	}
	if r.promptIDs, err = r.registry.IDs(cfg.TestTask, cfg.TestPromptIDs); err != nil {
		return nil, err
	}
	return r, nil
}

// State 当前状态。
func (r *Runner) State() State { return r.state }

// PromptIDs 本次评测的 prompt id。
func (r *Runner) PromptIDs() []int { return r.promptIDs }

// Results 已完成 prompt 的结果（按完成顺序）。
func (r *Runner) Results() []map[string]float64 { return r.results }

func (r *Runner) transition(to State) error {
	for _, next := range transitions[r.state] {
		if next == to {
			r.state = to
			return nil
		}
	}
	return core.NewDomainError(core.ModuleRunner, core.ErrorCodeInternalError,
		fmt.Sprintf("runner: illegal transition %s -> %s", r.state, to))
}

func (r *Runner) expect(states ...State) error {
	for _, s := range states {
		if r.state == s {
			return nil
		}
	}
	return core.NewDomainError(core.ModuleRunner, core.ErrorCodeInternalError,
		fmt.Sprintf("runner: unexpected state %s (want one of %v)", r.state, states))
}

// Load 打开分词器、加载测试集与模型，构建受限解码约束与抽取链路。
func (r *Runner) Load(ctx context.Context) error {
	if err := r.expect(StateUnloaded); err != nil {
		return err
	}
	cfg := r.cfg

	tok, err := r.openTok(cfg.TokenizerRepo())
	if err != nil {
		return fmt.Errorf("runner: open tokenizer: %w", err)
	}
	r.tok = tok

	data, err := dataset.Load(dataset.Options{
		DataPath:  cfg.DataPath,
		Dataset:   cfg.Dataset,
		IndexFile: cfg.IndexFile,
		Task:      cfg.TestTask,
		MaxHisLen: cfg.MaxHisLen,
		HisSep:    cfg.HisSep,
		AddPrefix: cfg.AddPrefix,
		SampleNum: cfg.SampleNum,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return err
	}
	r.data = data
	r.logger.Info("dataset loaded",
		zap.String("dataset", cfg.Dataset),
		zap.String("task", data.Task()),
		zap.Int("data_num", data.Len()),
		zap.Int("items", len(data.AllItems())))

	if err := r.gen.Health(ctx); err != nil {
		return fmt.Errorf("runner: generation backend: %w", err)
	}
	opts := core.LoadOptions{CheckpointPath: cfg.CheckpointPath, Device: cfg.GPUID}
	if cfg.Lora {
		opts.BaseModel = cfg.BaseModel
		opts.Adapter = true
		opts.ResizeEmbeddings = tok.Len()
	}
	start := time.Now()
	info, err := r.gen.Load(ctx, opts)
	if err != nil {
		return fmt.Errorf("runner: load model: %w", err)
	}
	if info.VocabSize == 0 {
		r.logger.Warn("backend did not report vocab size, skipping check")
	} else if info.VocabSize != tok.Len() {
		return core.NewConfigError(core.ModuleRunner,
			fmt.Sprintf("runner: model vocab size %d != tokenizer length %d", info.VocabSize, tok.Len()))
	}
	r.logger.Info("model loaded",
		zap.String("ckpt_path", cfg.CheckpointPath),
		zap.Bool("lora", cfg.Lora),
		zap.Int("vocab_size", info.VocabSize),
		zap.String("device", info.Device),
		zap.Duration("elapsed", time.Since(start)))

	r.constraint = data.PrefixAllowedTokens(tok)

	collator := dataset.NewCollator(r.registry, cfg.TestTask, tok)
	collator.MaxLength = cfg.MaxInputLen
	loaderOpts := []dataset.LoaderOption{
		dataset.WithWorkers(cfg.Workers),
		dataset.WithPrefetch(cfg.Prefetch),
	}
	if cfg.Shuffle {
		loaderOpts = append(loaderOpts, dataset.WithShuffle(cfg.Seed))
	}
	r.loader = dataset.NewLoader(data.Examples(), collator, cfg.TestBatchSize, loaderOpts...)

	p, err := r.buildPipeline(data)
	if err != nil {
		return err
	}
	r.extractor = &topk.Extractor{Pipeline: p, ResponseMarker: prompt.ResponseMarker, Task: data.Task()}
	r.logger.Debug("extraction pipeline", zap.Strings("nodes", p.Names()))

	return r.transition(StateModelReady)
}

// buildPipeline 优先使用 pipeline_file，否则按 filter_items / candidate_filter 构建默认链路，
// 默认链路截断到指标中最大的 k。
func (r *Runner) buildPipeline(data *dataset.Dataset) (*pipeline.Pipeline, error) {
	var items []string
	if r.cfg.FilterItems {
		items = data.AllItems()
	}

	if r.cfg.PipelineFile != "" {
		pc, err := pipeline.LoadFile(r.cfg.PipelineFile)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		if err := config.ValidatePipelineConfig(pc); err != nil {
			return nil, err
		}
		factory := config.DefaultFactory()
		factory.Register("filter", builders.FilterNodeBuilder(data.AllItems()))
		p, err := pc.BuildPipeline(factory)
		if err != nil {
			return nil, core.NewConfigError(core.ModuleRunner, fmt.Sprintf("runner: build pipeline: %v", err))
		}
		return p, nil
	}

	opts := topk.Options{Items: items, Depth: metric.MaxK(r.metrics)}
	if r.cfg.CandidateFilter != "" {
		f, err := filter.NewExprFilter(r.cfg.CandidateFilter)
		if err != nil {
			return nil, core.NewConfigError(core.ModuleRunner, fmt.Sprintf("runner: candidate_filter: %v", err))
		}
		opts.Filters = append(opts.Filters, f)
	}
	return topk.DefaultPipeline(opts), nil
}

// EvaluatePrompt 用指定 prompt 跑完整个测试集，返回各指标的均值。
func (r *Runner) EvaluatePrompt(ctx context.Context, promptID int) (map[string]float64, error) {
	if err := r.expect(StateModelReady, StateAggregated); err != nil {
		return nil, err
	}
	if err := r.transition(StateGenerating); err != nil {
		return nil, err
	}
	cfg := r.cfg
	log := r.logger.With(zap.Int("prompt_id", promptID))
	log.Info("prompt started", zap.Int("batches", r.loader.NumBatches()))
	start := time.Now()

	acc := metric.NewAccumulator(r.metrics)
	err := r.loader.Each(ctx, promptID, func(step int, b *core.Batch) error {
		resp, err := r.gen.Generate(ctx, &core.GenerateRequest{
			InputIDs:           b.InputIDs,
			AttentionMask:      b.AttentionMask,
			MaxNewTokens:       cfg.MaxNewTokens,
			NumBeams:           cfg.NumBeams,
			NumReturnSequences: cfg.NumBeams,
			Constraint:         r.constraint,
		})
		if err != nil {
			return fmt.Errorf("generate step %d: %w", step, err)
		}
		if want := b.Len() * cfg.NumBeams; len(resp.Sequences) != want {
			return core.NewDomainError(core.ModuleRunner, core.ErrorCodeInternalError,
				fmt.Sprintf("runner: step %d: expected %d sequences, got %d", step, want, len(resp.Sequences)))
		}

		texts := r.tok.BatchDecode(resp.Sequences, true)
		lists, err := r.extractor.Extract(ctx, promptID, texts, resp.Scores, b.Targets, cfg.NumBeams)
		if err != nil {
			return err
		}
		acc.Add(metric.Compute(lists, r.metrics), b.Len())

		if cfg.LogEvery > 0 && (step+1)%cfg.LogEvery == 0 {
			log.Info("progress",
				zap.Int("step", step+1),
				zap.Int("examples", acc.Total()),
				zap.Any("metrics", report.NewResults(r.metrics, acc.Snapshot())))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runner: prompt %d: %w", promptID, err)
	}

	res := acc.Finalize()
	r.results = append(r.results, res)
	log.Info("prompt finished",
		zap.Int("examples", acc.Total()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Any("results", report.NewResults(r.metrics, res)))
	return res, r.transition(StateAggregated)
}

// Run 依次评测全部 prompt，聚合并写出结果文件；任何错误都会中止且不写文件。
func (r *Runner) Run(ctx context.Context) (*report.Summary, error) {
	if r.state == StateUnloaded {
		if err := r.Load(ctx); err != nil {
			return nil, err
		}
	}
	for _, id := range r.promptIDs {
		if _, err := r.EvaluatePrompt(ctx, id); err != nil {
			return nil, err
		}
	}

	summary, err := report.Aggregate(r.cfg.TestPromptIDs, r.metrics, r.results)
	if err != nil {
		return nil, err
	}
	r.logger.Info("evaluation finished",
		zap.Any("mean", summary.MeanResults),
		zap.Any("min", summary.MinResults),
		zap.Any("max", summary.MaxResults))

	if err := report.Write(r.cfg.ResultsFile, summary); err != nil {
		return nil, err
	}
	r.logger.Info("results written", zap.String("path", r.cfg.ResultsFile))
	return summary, r.transition(StateDone)
}

// Close 释放生成后端。
func (r *Runner) Close() error {
	return r.gen.Close()
}
