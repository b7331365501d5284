package prompt

import (
	"fmt"
	"strings"
)

// SFTFrame 是微调时使用的指令框架；测试时 response 为空，模型从 ResponseMarker 之后开始生成。
const SFTFrame = "Below is an instruction that describes a task. Write a response that appropriately completes the request.\n\n" +
	"### Instruction:\n{instruction}\n\n### Response:{response}"

// ResponseMarker 标记模型回复的起始位置，受限解码与结果解析都以它为锚点。
const ResponseMarker = "Response:"

// Template 是一个 prompt 模板，占位符形如 {inters}。
type Template struct {
	Instruction string `yaml:"instruction" json:"instruction"`
	Response    string `yaml:"response" json:"response"`
}

// Render 用 fields 替换 Instruction 中的占位符；缺失字段返回错误。
func (t Template) Render(fields map[string]string) (string, error) {
	return render(t.Instruction, fields)
}

// Placeholders 返回 Instruction 中出现的占位符名（按出现顺序，去重）。
func (t Template) Placeholders() []string {
	var names []string
	seen := map[string]bool{}
	s := t.Instruction
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			return names
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			return names
		}
		name := s[start+1 : start+end]
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		s = s[start+end+1:]
	}
}

// Frame 把渲染好的 instruction 包进 SFT 框架，测试时 response 为空。
func Frame(instruction string) string {
	out, _ := render(SFTFrame, map[string]string{"instruction": instruction, "response": ""})
	return out
}

func render(text string, fields map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(text))
	s := text
	for {
		start := strings.IndexByte(s, '{')
		if start < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String(), nil
		}
		name := s[start+1 : start+end]
		val, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("missing field %q", name)
		}
		b.WriteString(s[:start])
		b.WriteString(val)
		s = s[start+end+1:]
	}
}
