package dataset

import (
	"fmt"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/prompt"
)

// BatchCollator 把一组样本按指定 prompt 组装成批次。
type BatchCollator interface {
	Collate(promptID int, examples []*core.Example) (*core.Batch, error)
}

// Collator 渲染模板、包 SFT 框架、分词并左侧补齐。
// prompt id 由调用方显式传入，Collator 本身无状态，可并发使用。
type Collator struct {
	Registry  *prompt.Registry
	Task      string
	Tokenizer core.Tokenizer

	// MaxLength 输入最大 token 数，超出时从左侧截断（保留回复标记），0 表示不限制
	MaxLength int
}

// NewCollator 创建 Collator。
func NewCollator(registry *prompt.Registry, task string, tok core.Tokenizer) *Collator {
	return &Collator{Registry: registry, Task: task, Tokenizer: tok}
}

func (c *Collator) Collate(promptID int, examples []*core.Example) (*core.Batch, error) {
	tpl, err := c.Registry.Get(c.Task, promptID)
	if err != nil {
		return nil, err
	}
	b := &core.Batch{
		PromptID: promptID,
		Examples: examples,
		Texts:    make([]string, len(examples)),
		Targets:  make([]string, len(examples)),
	}
	encoded := make([][]int, len(examples))
	longest := 0
	for i, ex := range examples {
		instruction, err := tpl.Render(ex.Fields)
		if err != nil {
			return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeInvalidInput,
				fmt.Sprintf("dataset: example %d (prompt %d): %v", ex.Index, promptID, err))
		}
		b.Texts[i] = prompt.Frame(instruction)
		b.Targets[i] = ex.Target

		ids := c.Tokenizer.Encode(b.Texts[i])
		if c.MaxLength > 0 && len(ids) > c.MaxLength {
			ids = ids[len(ids)-c.MaxLength:]
		}
		encoded[i] = ids
		longest = max(longest, len(ids))
	}

	b.InputIDs, b.AttentionMask = leftPad(encoded, longest, c.Tokenizer.PadID())
	return b, nil
}

func leftPad(seqs [][]int, length, pad int) ([][]int, [][]int) {
	ids := make([][]int, len(seqs))
	mask := make([][]int, len(seqs))
	for i, seq := range seqs {
		offset := length - len(seq)
		row := make([]int, length)
		m := make([]int, length)
		for j := 0; j < offset; j++ {
			row[j] = pad
		}
		copy(row[offset:], seq)
		for j := offset; j < length; j++ {
			m[j] = 1
		}
		ids[i] = row
		mask[i] = m
	}
	return ids, mask
}
