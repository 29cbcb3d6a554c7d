package filter

import (
	"context"
	"fmt"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pkg/dsl"
)

// ExprFilter 用 CEL 表达式描述排除规则，表达式为 true 的物品被过滤。
//
// 示例：
//
//	item.language != "en"
//	item.kind == "video" && item.age_hours > 168.0
type ExprFilter struct {
	expr *dsl.Expr
}

// NewExprFilter 编译表达式并创建过滤器。
func NewExprFilter(expr string) (*ExprFilter, error) {
	if expr == "" {
		return nil, fmt.Errorf("filter.expr: empty expression")
	}
	e, err := dsl.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("filter.expr: %w", err)
	}
	return &ExprFilter{expr: e}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(_ context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	if item == nil {
		return true, nil
	}
	return f.expr.Match(item, rctx)
}
