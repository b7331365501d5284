package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pkg/dsl"
)

// ExprFilter 使用 CEL 表达式决定保留哪些候选：表达式为 true 的候选被保留。
// 例如 `candidate.score > -10.0`、`candidate.id.startsWith("<a_")`。
type ExprFilter struct {
	program *dsl.Program
}

// NewExprFilter 编译表达式；语法错误在构建阶段就返回。
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("filter.expr: %w", err)
	}
	return &ExprFilter{program: prg}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	ectx *core.EvalContext,
	candidate *core.Candidate,
) (bool, error) {
	if candidate == nil {
		return true, nil
	}
	keep, err := f.program.Eval(candidate, ectx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
