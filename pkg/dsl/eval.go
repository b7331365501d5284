package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/receval/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("candidate", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("ctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译好的候选过滤表达式，使用 CEL (Common Expression Language)。
// 表达式在启动时编译一次，之后每个候选只做求值。
//
// 可用变量：
//   - candidate.id / candidate.score / candidate.beam
//   - label.<key>：候选 label 的 value
//   - ctx.task / ctx.prompt_id / ctx.params
//
// 示例：
//   - `candidate.score > -5.0`
//   - `candidate.id.startsWith("<a_")`
//   - `ctx.prompt_id == 0 || candidate.beam < 10`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 解析并编译表达式，表达式必须返回 bool。
func Compile(expr string) (*Program, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string {
	return p.expr
}

// Eval 对单个候选求值。
func (p *Program) Eval(c *core.Candidate, ectx *core.EvalContext) (bool, error) {
	out, _, err := p.prg.Eval(buildInput(c, ectx))
	if err != nil {
		// 访问不存在的 label key 会报错，应使用 has(label.key) 判断
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", p.expr, out.Value())
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(c *core.Candidate, ectx *core.EvalContext) map[string]interface{} {
	labels := make(map[string]interface{}, len(c.Labels))
	for k, v := range c.Labels {
		labels[k] = v.Value
	}

	candidate := map[string]interface{}{
		"id":    c.ID,
		"score": c.Score,
		"beam":  int64(c.Beam),
	}

	ctx := map[string]interface{}{}
	if ectx != nil {
		ctx["task"] = ectx.Task
		ctx["prompt_id"] = int64(ectx.PromptID)
		params := ectx.Params
		if params == nil {
			params = map[string]any{}
		}
		ctx["params"] = params
	}

	return map[string]interface{}{
		"candidate": candidate,
		"label":     labels,
		"ctx":       ctx,
	}
}
