package core

// EvalContext 承载当前样本的评测上下文，在 Top-K 抽取的每个 Node 之间透传。
type EvalContext struct {
	Task     string
	PromptID int

	// Target 是该样本的真实物品标识。抽取阶段的 Node 不应依赖它做过滤，
	// 仅用于 explain / 调试。
	Target string

	// Params 请求级参数，例如表达式过滤需要的额外变量
	Params map[string]any
}
