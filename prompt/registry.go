// Package prompt 维护任务名到有序 prompt 模板列表的映射。
package prompt

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/receval/core"
)

// 内置任务名
const (
	TaskSeqRec       = "seqrec"
	TaskItemSearch   = "itemsearch"
	TaskFusionSeqRec = "fusionseqrec"
)

// Registry 是任务 → 模板列表的静态映射，任务名不区分大小写。
type Registry struct {
	tasks map[string][]Template
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string][]Template)}
}

// Default 返回包含内置模板的注册表。
func Default() *Registry {
	r := NewRegistry()
	r.Set(TaskSeqRec, seqRecTemplates)
	r.Set(TaskItemSearch, itemSearchTemplates)
	r.Set(TaskFusionSeqRec, fusionSeqRecTemplates)
	return r
}

// Set 替换某个任务的模板列表。
func (r *Registry) Set(task string, templates []Template) {
	cp := make([]Template, len(templates))
	copy(cp, templates)
	r.tasks[strings.ToLower(task)] = cp
}

// Tasks 返回已注册任务（排序）。
func (r *Registry) Tasks() []string {
	out := make([]string, 0, len(r.tasks))
	for t := range r.tasks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Templates 返回任务的模板列表。
func (r *Registry) Templates(task string) ([]Template, error) {
	ts, ok := r.tasks[strings.ToLower(task)]
	if !ok {
		return nil, core.NewConfigError(core.ModulePrompt,
			fmt.Sprintf("prompt: unknown task %q (supported: %v)", task, r.Tasks()))
	}
	return ts, nil
}

// Get 返回任务的第 id 个模板。
func (r *Registry) Get(task string, id int) (Template, error) {
	ts, err := r.Templates(task)
	if err != nil {
		return Template{}, err
	}
	if id < 0 || id >= len(ts) {
		return Template{}, core.NewConfigError(core.ModulePrompt,
			fmt.Sprintf("prompt: id %d out of range for task %q (%d templates)", id, task, len(ts)))
	}
	return ts[id], nil
}

// IDs 解析 prompt id 选择："all" 表示全部模板，否则为逗号分隔的整数列表。
func (r *Registry) IDs(task, selection string) ([]int, error) {
	ts, err := r.Templates(task)
	if err != nil {
		return nil, err
	}
	selection = strings.TrimSpace(selection)
	if strings.EqualFold(selection, "all") {
		ids := make([]int, len(ts))
		for i := range ids {
			ids[i] = i
		}
		return ids, nil
	}

	var ids []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, core.NewConfigError(core.ModulePrompt,
				fmt.Sprintf("prompt: invalid prompt id %q in %q", part, selection))
		}
		if id < 0 || id >= len(ts) {
			return nil, core.NewConfigError(core.ModulePrompt,
				fmt.Sprintf("prompt: id %d out of range for task %q (%d templates)", id, task, len(ts)))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// fileConfig 是 prompt 文件的结构：
//
//	prompts:
//	  seqrec:
//	    - instruction: "..."
//	      response: "{item}"
type fileConfig struct {
	Prompts map[string][]Template `yaml:"prompts"`
}

// LoadFile 读取 YAML 文件，覆盖（或新增）其中出现的任务。
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse prompt file: %w", err)
	}
	for task, ts := range cfg.Prompts {
		if len(ts) == 0 {
			return core.NewConfigError(core.ModulePrompt, fmt.Sprintf("prompt: task %q has no templates", task))
		}
		r.Set(task, ts)
	}
	return nil
}
