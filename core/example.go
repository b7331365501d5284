package core

// Example 是一条测试样本：一段用户历史以及下一个真实物品。
// Fields 是渲染 prompt 模板所需的字段（如 inters、explicit_preference）。
type Example struct {
	Index  int
	UserID string
	Fields map[string]string
	Target string
}

// Batch 是 Collator 输出的一个批次：已渲染、已分词、左侧补齐。
type Batch struct {
	PromptID      int
	Examples      []*Example
	Texts         []string
	InputIDs      [][]int
	AttentionMask [][]int
	Targets       []string
}

// Len 返回批次中的样本数。
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Targets)
}
