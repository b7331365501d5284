package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/metric"
	"github.com/rushteam/receval/pkg/dsl"
	"github.com/rushteam/receval/prompt"
	"github.com/rushteam/receval/service"
	"github.com/rushteam/receval/store"
)

// EvalConfig 是一次评测的全部参数。
// 优先级：命令行参数 > 配置文件 > 默认值。
type EvalConfig struct {
	Seed int64 `yaml:"seed"`

	// 数据集
	DataPath  string `yaml:"data_path"`
	Dataset   string `yaml:"dataset"`
	IndexFile string `yaml:"index_file"`
	MaxHisLen int    `yaml:"max_his_len"`
	HisSep    string `yaml:"his_sep"`
	AddPrefix bool   `yaml:"add_prefix"`
	SampleNum int    `yaml:"sample_num"`

	// 模型
	CheckpointPath string `yaml:"ckpt_path"`
	BaseModel      string `yaml:"base_model"`
	Lora           bool   `yaml:"lora"`
	GPUID          int    `yaml:"gpu_id"`

	// 分词器：HuggingFace repo id，为空时使用 ckpt_path；hf_cache_dir 为 hub 缓存目录
	Tokenizer  string `yaml:"tokenizer"`
	HFCacheDir string `yaml:"hf_cache_dir"`

	// 评测
	TestTask      string `yaml:"test_task"`
	TestPromptIDs string `yaml:"test_prompt_ids"`
	NumBeams      int    `yaml:"num_beams"`
	MaxNewTokens  int    `yaml:"max_new_tokens"`
	TestBatchSize int    `yaml:"test_batch_size"`
	MaxInputLen   int    `yaml:"max_input_len"`
	FilterItems   bool   `yaml:"filter_items"`
	Metrics       string `yaml:"metrics"`
	ResultsFile   string `yaml:"results_file"`
	LogEvery      int    `yaml:"log_every"`

	// 数据加载
	Workers  int  `yaml:"workers"`
	Prefetch int  `yaml:"prefetch"`
	Shuffle  bool `yaml:"shuffle"`

	// 扩展
	PipelineFile    string `yaml:"pipeline_file"`
	PromptFile      string `yaml:"prompt_file"`
	CandidateFilter string `yaml:"candidate_filter"`

	Service service.ServiceConfig `yaml:"service"`
	Cache   store.Config          `yaml:"cache"`
}

// Default 返回默认配置。
func Default() *EvalConfig {
	return &EvalConfig{
		Seed:          42,
		DataPath:      "./data",
		Dataset:       "Games",
		IndexFile:     ".index.json",
		MaxHisLen:     20,
		HisSep:        ", ",
		TestTask:      "SeqRec",
		TestPromptIDs: "0",
		NumBeams:      20,
		MaxNewTokens:  10,
		TestBatchSize: 1,
		Metrics:       "hit@1,hit@5,hit@10,ndcg@5,ndcg@10",
		ResultsFile:   "./results/test.json",
		LogEvery:      10,
		Workers:       4,
		Shuffle:       true,
		Service: service.ServiceConfig{
			Type:      service.ServiceTypeTorchServe,
			Endpoint:  "http://127.0.0.1:8080",
			ModelName: "lcrec",
		},
		Cache: store.Config{Type: store.TypeNone},
	}
}

// Load 在默认值之上叠加 YAML 配置文件；path 为空时只返回默认值。
// 文件中出现未知字段视为配置错误。
func Load(path string) (*EvalConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.MergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile 读取 YAML 文件并覆盖到当前配置上。
func (c *EvalConfig) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewConfigError(core.ModuleConfig, fmt.Sprintf("config: read %s: %v", path, err))
	}
	if err := c.Merge(data); err != nil {
		return core.NewConfigError(core.ModuleConfig, fmt.Sprintf("config: parse %s: %v", path, err))
	}
	return nil
}

// Merge 把 YAML 内容覆盖到当前配置上，未出现的字段保持原值。
func (c *EvalConfig) Merge(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Registry 返回内置模板注册表，配置了 prompt_file 时叠加文件中的模板。
func (c *EvalConfig) Registry() (*prompt.Registry, error) {
	reg := prompt.Default()
	if c.PromptFile != "" {
		if err := reg.LoadFile(c.PromptFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Validate 在调用模型之前检查全部参数，返回所有问题（errors.Join）。
func (c *EvalConfig) Validate(reg *prompt.Registry) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, core.NewConfigError(core.ModuleConfig, fmt.Sprintf("config: "+format, args...)))
	}

	if _, err := metric.ParseList(c.Metrics); err != nil {
		errs = append(errs, err)
	}
	if reg != nil {
		if _, err := reg.IDs(c.TestTask, c.TestPromptIDs); err != nil {
			errs = append(errs, err)
		}
	}
	if c.NumBeams <= 0 {
		bad("num_beams must be > 0, got %d", c.NumBeams)
	}
	if c.MaxNewTokens <= 0 {
		bad("max_new_tokens must be > 0, got %d", c.MaxNewTokens)
	}
	if c.TestBatchSize <= 0 {
		bad("test_batch_size must be > 0, got %d", c.TestBatchSize)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"max_his_len", c.MaxHisLen},
		{"sample_num", c.SampleNum},
		{"max_input_len", c.MaxInputLen},
		{"workers", c.Workers},
		{"prefetch", c.Prefetch},
		{"log_every", c.LogEvery},
	} {
		if f.v < 0 {
			bad("%s must be >= 0, got %d", f.name, f.v)
		}
	}

	if c.CheckpointPath == "" {
		bad("ckpt_path is required")
	} else if _, err := os.Stat(c.CheckpointPath); err != nil {
		bad("ckpt_path %s: %v", c.CheckpointPath, err)
	}
	if c.Lora && c.BaseModel == "" {
		bad("base_model is required when lora is set")
	}
	if c.Dataset == "" {
		bad("dataset is required")
	} else if info, err := os.Stat(filepath.Join(c.DataPath, c.Dataset)); err != nil || !info.IsDir() {
		bad("dataset directory %s not found", filepath.Join(c.DataPath, c.Dataset))
	}
	if c.ResultsFile == "" {
		bad("results_file is required")
	}
	for _, f := range []struct{ name, path string }{
		{"pipeline_file", c.PipelineFile},
		{"prompt_file", c.PromptFile},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			bad("%s %s: %v", f.name, f.path, err)
		}
	}
	if c.CandidateFilter != "" {
		if _, err := dsl.Compile(c.CandidateFilter); err != nil {
			bad("candidate_filter: %v", err)
		}
	}
	if err := service.ValidateConfig(&c.Service); err != nil {
		errs = append(errs, err)
	}
	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TokenizerRepo 返回打开分词器使用的 repo id。
func (c *EvalConfig) TokenizerRepo() string {
	if c.Tokenizer != "" {
		return c.Tokenizer
	}
	return c.CheckpointPath
}

// Redacted 返回隐去认证信息的副本，用于日志。
func (c *EvalConfig) Redacted() EvalConfig {
	out := *c
	if c.Service.Auth != nil {
		auth := *c.Service.Auth
		for _, s := range []*string{&auth.Password, &auth.Token, &auth.APIKey} {
			if *s != "" {
				*s = "***"
			}
		}
		out.Service.Auth = &auth
	}
	return out
}
