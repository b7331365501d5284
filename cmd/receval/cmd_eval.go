package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/receval/config"
	"github.com/rushteam/receval/prompt"
	"github.com/rushteam/receval/runner"
	"github.com/rushteam/receval/service"
	"github.com/rushteam/receval/store"
)

func newTestCmd(a *app) *cobra.Command {
	cfg := config.Default()
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Evaluate a checkpoint on the test split",
		Long: `Loads the checkpoint through the generation backend, evaluates every selected
prompt template and writes the aggregated results to results_file.

Example:
  receval test --ckpt_path ./ckpt/Games --dataset Games --test_prompt_ids all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(cmd.Flags(), cfg, a.configFile); err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}
			if err := cfg.Validate(reg); err != nil {
				return err
			}
			if dryRun {
				return printConfig(cmd.OutOrStdout(), cfg)
			}
			return runEval(cmd.Context(), a.logger, cfg, reg)
		},
	}
	bindEvalFlags(cmd.Flags(), cfg)
	cmd.Flags().BoolVar(&dryRun, "dry_run", false, "validate and print the resolved config without loading the model")
	return cmd
}

// bindEvalFlags 把参数直接绑定到 cfg 字段，默认值即 cfg 当前值。
func bindEvalFlags(fs *pflag.FlagSet, cfg *config.EvalConfig) {
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")

	fs.StringVar(&cfg.DataPath, "data_path", cfg.DataPath, "data directory")
	fs.StringVar(&cfg.Dataset, "dataset", cfg.Dataset, "dataset name")
	fs.StringVar(&cfg.IndexFile, "index_file", cfg.IndexFile, "item index file suffix")
	fs.IntVar(&cfg.MaxHisLen, "max_his_len", cfg.MaxHisLen, "max history length, 0 for unlimited")
	fs.StringVar(&cfg.HisSep, "his_sep", cfg.HisSep, "history separator")
	fs.BoolVar(&cfg.AddPrefix, "add_prefix", cfg.AddPrefix, "number history entries")
	fs.IntVar(&cfg.SampleNum, "sample_num", cfg.SampleNum, "evaluate a random subset, 0 for all")

	fs.StringVar(&cfg.CheckpointPath, "ckpt_path", cfg.CheckpointPath, "checkpoint (or adapter) path")
	fs.StringVar(&cfg.BaseModel, "base_model", cfg.BaseModel, "base model path when --lora is set")
	fs.BoolVar(&cfg.Lora, "lora", cfg.Lora, "checkpoint is a low-rank adapter")
	fs.IntVar(&cfg.GPUID, "gpu_id", cfg.GPUID, "device id")
	fs.StringVar(&cfg.Tokenizer, "tokenizer", cfg.Tokenizer, "HuggingFace repo of the tokenizer, defaults to --ckpt_path")
	fs.StringVar(&cfg.HFCacheDir, "hf_cache_dir", cfg.HFCacheDir, "HuggingFace hub cache directory")

	fs.StringVar(&cfg.TestTask, "test_task", cfg.TestTask, "task: seqrec, itemsearch, fusionseqrec")
	fs.StringVar(&cfg.TestPromptIDs, "test_prompt_ids", cfg.TestPromptIDs, `comma separated prompt ids or "all"`)
	fs.IntVar(&cfg.NumBeams, "num_beams", cfg.NumBeams, "beam width, also the number of candidates")
	fs.IntVar(&cfg.MaxNewTokens, "max_new_tokens", cfg.MaxNewTokens, "max generated tokens")
	fs.IntVar(&cfg.TestBatchSize, "test_batch_size", cfg.TestBatchSize, "examples per batch")
	fs.IntVar(&cfg.MaxInputLen, "max_input_len", cfg.MaxInputLen, "left-truncate prompts to this length, 0 for unlimited")
	fs.BoolVar(&cfg.FilterItems, "filter_items", cfg.FilterItems, "drop candidates that are not valid items")
	fs.StringVar(&cfg.Metrics, "metrics", cfg.Metrics, "comma separated metrics, e.g. hit@1,ndcg@5")
	fs.StringVar(&cfg.ResultsFile, "results_file", cfg.ResultsFile, "results JSON path")
	fs.IntVar(&cfg.LogEvery, "log_every", cfg.LogEvery, "log running metrics every N batches, 0 to disable")

	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "collate workers")
	fs.IntVar(&cfg.Prefetch, "prefetch", cfg.Prefetch, "batches prepared ahead, 0 for 2*workers")
	fs.BoolVar(&cfg.Shuffle, "shuffle", cfg.Shuffle, "shuffle example order with the seed")

	fs.StringVar(&cfg.PipelineFile, "pipeline_file", cfg.PipelineFile, "candidate pipeline YAML/JSON")
	fs.StringVar(&cfg.PromptFile, "prompt_file", cfg.PromptFile, "extra prompt templates YAML")
	fs.StringVar(&cfg.CandidateFilter, "candidate_filter", cfg.CandidateFilter, "CEL expression, candidates evaluating to false are dropped")

	fs.StringVar((*string)(&cfg.Service.Type), "service_type", string(cfg.Service.Type), "generation backend: torchserve, rpc")
	fs.StringVar(&cfg.Service.Endpoint, "service_endpoint", cfg.Service.Endpoint, "generation backend URL")
	fs.StringVar(&cfg.Service.ModelName, "service_model", cfg.Service.ModelName, "model name on the backend")
	fs.IntVar(&cfg.Service.Timeout, "service_timeout", cfg.Service.Timeout, "request timeout in seconds")

	fs.StringVar(&cfg.Cache.Type, "cache_type", cfg.Cache.Type, "generation cache: none, memory, sqlite, redis")
	fs.StringVar(&cfg.Cache.Addr, "cache_addr", cfg.Cache.Addr, "redis address")
	fs.StringVar(&cfg.Cache.Path, "cache_path", cfg.Cache.Path, "sqlite file")
	fs.IntVar(&cfg.Cache.TTL, "cache_ttl", cfg.Cache.TTL, "cache entry TTL in seconds, 0 for none")
}

// resolveConfig 按 默认值 < 配置文件 < 显式参数 的顺序得到最终配置。
// 参数已绑定在 cfg 上，所以先记下显式设置过的参数，合并文件后再写回。
func resolveConfig(fs *pflag.FlagSet, cfg *config.EvalConfig, path string) error {
	if path == "" {
		return nil
	}
	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := cfg.MergeFile(path); err != nil {
		return err
	}
	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.EvalConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg.Redacted()); err != nil {
		return err
	}
	return enc.Close()
}

// cacheTag 区分不同模型与数据集的缓存条目。
func cacheTag(cfg *config.EvalConfig) string {
	return fmt.Sprintf("%s|%s|%t|%s|%s", cfg.CheckpointPath, cfg.BaseModel, cfg.Lora, cfg.Dataset, cfg.IndexFile)
}

func runEval(ctx context.Context, logger *zap.Logger, cfg *config.EvalConfig, reg *prompt.Registry) error {
	red := cfg.Redacted()
	logger.Info("configuration", zap.Any("config", &red))

	gen, err := service.NewGenerator(&cfg.Service)
	if err != nil {
		return err
	}
	cache, err := store.New(ctx, cfg.Cache)
	if err != nil {
		_ = gen.Close()
		return err
	}
	var cached *service.CachedGenerator
	if cache != nil {
		cached = service.NewCachedGenerator(gen, cache, cacheTag(cfg), cfg.Cache.TTL)
		gen = cached
		logger.Info("generation cache enabled", zap.String("type", cfg.Cache.Type))
	}

	r, err := runner.New(cfg, gen, runner.WithLogger(logger), runner.WithRegistry(reg))
	if err != nil {
		_ = gen.Close()
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Warn("close generation backend", zap.Error(err))
		}
	}()

	_, err = r.Run(ctx)
	if cached != nil {
		hits, misses := cached.Stats()
		logger.Info("generation cache", zap.Int64("hits", hits), zap.Int64("misses", misses))
	}
	return err
}
