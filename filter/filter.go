// Package filter 在融合之后、重排之前剔除候选：表达式、已曝光、黑名单、用户屏蔽的 feed。
// 任一过滤器命中即移除；过滤器出错时跳过该过滤器，不中断请求。
package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
)

// Filter 是过滤器的抽象接口，用于判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断候选是否应该被过滤
	ShouldFilter(ctx context.Context, uctx *core.UserContext, c core.Candidate) (bool, error)
}

// Preparer 由需要按请求预加载数据的过滤器实现。
// Apply 先调用 Prepare，用返回的过滤器逐个判断候选，避免每个候选访问一次存储。
type Preparer interface {
	Prepare(ctx context.Context, uctx *core.UserContext) (Filter, error)
}

// Result 是一次过滤的结果。
type Result struct {
	Items []core.Candidate
	// Removed 按过滤器名称统计移除数量
	Removed map[string]int
	// Errors 按过滤器名称记录被跳过的错误
	Errors map[string]error
}

// Apply 依次用 filters 判断每个候选，保持原顺序。nil 过滤器被忽略。
func Apply(ctx context.Context, uctx *core.UserContext, cands []core.Candidate, filters ...Filter) Result {
	res := Result{Removed: map[string]int{}, Errors: map[string]error{}}
	active := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f == nil {
			continue
		}
		if p, ok := f.(Preparer); ok {
			prepared, err := p.Prepare(ctx, uctx)
			if err != nil {
				res.Errors[f.Name()] = err
				continue
			}
			f = prepared
		}
		active = append(active, f)
	}
	if len(active) == 0 || len(cands) == 0 {
		res.Items = cands
		return res
	}

	out := make([]core.Candidate, 0, len(cands))
	for _, c := range cands {
		removedBy := ""
		for _, f := range active {
			hit, err := f.ShouldFilter(ctx, uctx, c)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				if _, ok := res.Errors[f.Name()]; !ok {
					res.Errors[f.Name()] = err
				}
				continue
			}
			if hit {
				removedBy = f.Name()
				break
			}
		}
		if removedBy != "" {
			res.Removed[removedBy]++
			continue
		}
		out = append(out, c)
	}
	res.Items = out
	return res
}

// idSetFilter 是 Prepare 产出的按物品 ID 过滤的请求级过滤器。
type idSetFilter struct {
	name string
	ids  map[int64]struct{}
}

func (f *idSetFilter) Name() string { return f.name }

func (f *idSetFilter) ShouldFilter(_ context.Context, _ *core.UserContext, c core.Candidate) (bool, error) {
	_, ok := f.ids[c.ItemID]
	return ok, nil
}
