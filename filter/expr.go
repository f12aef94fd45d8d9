package filter

import (
	"context"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/pkg/dsl"
)

// FilterExpr 是请求 filters 中保留条件表达式的 key。
const FilterExpr = "expr"

// ExprFilter 按 CEL 表达式保留候选：表达式为 false 的候选被过滤。
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式；expr 为空时返回 nil, nil。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if expr == "" {
		return nil, nil
	}
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "invalid filter expression", err)
	}
	return &ExprFilter{prg: prg}, nil
}

// ExprFromFilters 从请求 filters 中构造 ExprFilter，没有表达式时返回 nil, nil。
func ExprFromFilters(filters map[string]any) (*ExprFilter, error) {
	expr, _ := filters[FilterExpr].(string)
	return NewExprFilter(expr)
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(_ context.Context, uctx *core.UserContext, c core.Candidate) (bool, error) {
	if f == nil || f.prg == nil {
		return false, nil
	}
	keep, err := f.prg.Match(c, uctx)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
