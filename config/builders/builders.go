// Package builders 注册内置过滤器的配置构建逻辑。
package builders

import (
	"errors"
	"time"

	"github.com/rushteam/recallkit/config"
	"github.com/rushteam/recallkit/filter"
	"github.com/rushteam/recallkit/pkg/conv"
)

// 内置过滤器类型
const (
	TypeBlacklist = "blacklist"
	TypeExposed   = "exposed"
	TypeUserBlock = "user_block"
)

var errStoreRequired = errors.New("filter store is not configured")

func init() {
	config.Register(TypeBlacklist, BuildBlacklist)
	config.Register(TypeExposed, BuildExposed)
	config.Register(TypeUserBlock, BuildUserBlock)
}

// BuildBlacklist 配置项：item_ids（静态黑名单），key（存储中的黑名单集合，可选）。
func BuildBlacklist(cfg map[string]any, deps config.FilterDeps) (filter.Filter, error) {
	ids := conv.ParseInt64s(cfg["item_ids"])
	key := conv.ConfigGetString(cfg, "key", "")
	if key != "" && deps.Store == nil {
		return nil, errStoreRequired
	}
	f := filter.NewBlacklistFilter(ids, nil, key)
	if deps.Store != nil {
		f.Store = deps.Store
	}
	return f, nil
}

// BuildExposed 配置项：window（如 "72h"，为空表示不限时间窗口）。
// 没有配置存储时只过滤用户上下文中的近期交互。
func BuildExposed(cfg map[string]any, deps config.FilterDeps) (filter.Filter, error) {
	var window time.Duration
	if s := conv.ConfigGetString(cfg, "window", ""); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, err
		}
		window = d
	}
	f := filter.NewExposedFilter(nil, window)
	if deps.Store != nil {
		f.Store = deps.Store
	}
	return f, nil
}

func BuildUserBlock(_ map[string]any, deps config.FilterDeps) (filter.Filter, error) {
	if deps.Store == nil {
		return nil, errStoreRequired
	}
	return filter.NewUserBlockFilter(deps.Store), nil
}
