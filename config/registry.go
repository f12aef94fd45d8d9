package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/recallkit/filter"
)

// FilterDeps 是过滤器构建时可用的外部依赖，字段可为空。
type FilterDeps struct {
	Store *filter.StoreAdapter
}

// FilterBuilder 根据配置构建过滤器。
// 各过滤器在 init 中调用 Register(typeName, builder) 即可被配置驱动。
type FilterBuilder func(cfg map[string]any, deps FilterDeps) (filter.Filter, error)

var (
	defaultBuilders   = make(map[string]FilterBuilder)
	defaultBuildersMu sync.RWMutex
)

// Register 注册一种过滤器的构建逻辑。
// 建议在 init 中调用，例如：func init() { config.Register("blacklist", BuildBlacklist) }
func Register(typeName string, builder FilterBuilder) {
	if typeName == "" || builder == nil {
		return
	}
	defaultBuildersMu.Lock()
	defer defaultBuildersMu.Unlock()
	defaultBuilders[typeName] = builder
}

// SupportedTypes 返回当前已注册的过滤器类型（排序），用于错误提示与校验。
func SupportedTypes() []string {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	types := make([]string, 0, len(defaultBuilders))
	for t := range defaultBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func lookup(typeName string) (FilterBuilder, bool) {
	defaultBuildersMu.RLock()
	defer defaultBuildersMu.RUnlock()
	b, ok := defaultBuilders[typeName]
	return b, ok
}

// ValidateFilters 校验所有过滤器类型均已注册；若有未支持类型则返回包含已支持列表的错误。
func ValidateFilters(cfgs []FilterConfig) error {
	for _, fc := range cfgs {
		if _, ok := lookup(fc.Type); !ok {
			return fmt.Errorf("unsupported filter type %q (supported: %v)", fc.Type, SupportedTypes())
		}
	}
	return nil
}

// BuildFilters 按配置顺序构建过滤器。
func BuildFilters(cfgs []FilterConfig, deps FilterDeps) ([]filter.Filter, error) {
	if err := ValidateFilters(cfgs); err != nil {
		return nil, err
	}
	out := make([]filter.Filter, 0, len(cfgs))
	for _, fc := range cfgs {
		builder, _ := lookup(fc.Type)
		cfg := fc.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		f, err := builder(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build filter %s: %w", fc.Type, err)
		}
		out = append(out, f)
	}
	return out, nil
}
