// Package receval 评测生成式推荐模型（Generative Recommender Evaluation）。
//
// 设计要点：
// - Backend-first: 模型权重、beam search 与受限解码都在生成服务里，本地只描述调用契约（core.Generator）
// - Pipeline-first: beam 输出经 Node 串联整理（排序 → 过滤 → 去重 → 截断）后再计算指标
// - 配置先行: 指标、prompt id、路径在调用模型之前全部校验
package receval

import (
	"context"

	"github.com/rushteam/receval/config"
	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
	"github.com/rushteam/receval/report"
	"github.com/rushteam/receval/runner"
)

// 轻量 facade：便于用户直接 import "receval" 使用核心抽象。
type (
	Pipeline   = pipeline.Pipeline
	Node       = pipeline.Node
	Generator  = core.Generator
	Tokenizer  = core.Tokenizer
	EvalConfig = config.EvalConfig
	Summary    = report.Summary
)

// Evaluate 用 gen 跑完 cfg 描述的全部 prompt，写出结果文件并关闭 gen。
func Evaluate(ctx context.Context, cfg *EvalConfig, gen Generator, opts ...runner.Option) (*Summary, error) {
	r, err := runner.New(cfg, gen, opts...)
	if err != nil {
		_ = gen.Close()
		return nil, err
	}
	defer r.Close()
	return r.Run(ctx)
}
