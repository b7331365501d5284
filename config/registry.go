package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/receval/core"
	"github.com/rushteam/receval/pipeline"
)

// 抽取链路的 Node 类型在 config/builders 的 init 中注册；
// 读 pipeline_file 之前需要 import _ "github.com/rushteam/receval/config/builders"（runner 已引入）。

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

var (
	nodeBuilders   = make(map[string]NodeBuilder)
	nodeBuildersMu sync.RWMutex
)

// Register 注册一种 Node 类型；同名覆盖，空名或 nil builder 忽略。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	nodeBuildersMu.Lock()
	defer nodeBuildersMu.Unlock()
	nodeBuilders[typeName] = builder
}

// SupportedTypes 返回已注册的 Node 类型（排序）。
func SupportedTypes() []string {
	nodeBuildersMu.RLock()
	defer nodeBuildersMu.RUnlock()
	return sortedKeys(nodeBuilders)
}

// DefaultFactory 返回包含全部已注册类型的 NodeFactory。
// 需要运行时依赖的 builder（如绑定物品集合的 filter）可以在返回的 factory 上再次 Register 覆盖。
func DefaultFactory() *pipeline.NodeFactory {
	nodeBuildersMu.RLock()
	defer nodeBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range nodeBuilders {
		f.Register(typeName, builder)
	}
	return f
}

// ValidatePipelineConfig 检查链路非空、每个 node 都有已注册的类型，一次返回全部问题。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil || len(cfg.Pipeline.Nodes) == 0 {
		return core.NewConfigError(core.ModuleConfig, "pipeline: no nodes configured")
	}
	nodeBuildersMu.RLock()
	defer nodeBuildersMu.RUnlock()

	var errs []error
	for i, nc := range cfg.Pipeline.Nodes {
		if nc.Type == "" {
			errs = append(errs, core.NewConfigError(core.ModuleConfig,
				fmt.Sprintf("pipeline: node %d has no type", i)))
			continue
		}
		if _, ok := nodeBuilders[nc.Type]; !ok {
			errs = append(errs, core.NewConfigError(core.ModuleConfig,
				fmt.Sprintf("pipeline: node %d: unsupported type %q", i, nc.Type)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w (supported: %v)", errors.Join(errs...), sortedKeys(nodeBuilders))
	}
	return nil
}

func sortedKeys(m map[string]NodeBuilder) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
