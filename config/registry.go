package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/dropfeed/pipeline"
)

// 使用配置驱动时，需在 main 或入口处 import "github.com/rushteam/dropfeed/config/builders"
// 以触发内置 Node（filter.tagged、filter.expr、rerank.diversity 等）的 init 注册。
// 依赖运行时对象的 Node（recall.candidate、rank.score）由 builders.NewFactory 绑定。

// NodeBuilder 与 pipeline.NodeBuilder 一致：根据 config 构建 Node。
type NodeBuilder = pipeline.NodeBuilder

var (
	defaultBuilders   = make(map[string]NodeBuilder)
	defaultBuildersMu sync.RWMutex

	// knownTypes 包含需要运行时依赖、只在 NewFactory 中绑定的类型，校验时同样视为已支持
	knownTypes = make(map[string]struct{})
)

// Register 注册一种 Node 的构建逻辑，供 DefaultFactory 与配置驱动使用。
func Register(typeName string, builder NodeBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
	knownTypes[typeName] = struct{}{}
}

// Declare 声明一种由运行时依赖绑定的 Node 类型，使其通过 ValidatePipelineConfig。
func Declare(typeName string) {
	if typeName == "" {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	knownTypes[typeName] = struct{}{}
}

// SupportedTypes 返回当前已注册或声明的 Node 类型列表（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(knownTypes))
	for t := range knownTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultFactory 返回基于当前注册表构建的 NodeFactory，只包含不需要运行时依赖的 Node 类型。
func DefaultFactory() *pipeline.NodeFactory {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	f := pipeline.NewNodeFactory()
	for typeName, builder := range defaultBuilders {
		f.Register(typeName, builder)
	}
	return f
}

// ValidatePipelineConfig 校验 pipeline 配置中所有 node 类型均已注册；若有未支持类型则返回包含已支持列表的错误。
// 注册表为空（未导入 builders）时跳过校验。
func ValidatePipelineConfig(cfg *pipeline.Config) error {
	if cfg == nil {
		return nil
	}
	supported := SupportedTypes()
	if len(supported) == 0 {
		return nil
	}
	for i, nc := range cfg.Nodes {
		if nc.Type == "" {
			return fmt.Errorf("pipeline %q node %d: missing type", cfg.Name, i)
		}
		defaultBuildersMu.RLock()
		_, ok := knownTypes[nc.Type]
		defaultBuildersMu.RUnlock()
		if !ok {
			return fmt.Errorf("unsupported node type %q (supported: %v)", nc.Type, supported)
		}
	}
	return nil
}
