package filter

import (
	"context"

	"github.com/rushteam/dropfeed/core"
)

// TaggedFilter 过滤掉尚未完成打标的内容。Candidate Store 的查询已经排除了
// 未打标数据，这里在 Pipeline 内再做一次，保证自定义召回源也满足约束。
type TaggedFilter struct{}

func (f *TaggedFilter) Name() string {
	return "filter.tagged"
}

func (f *TaggedFilter) ShouldFilter(_ context.Context, _ *core.RecommendContext, item *core.Item) (bool, error) {
	return item == nil || !item.Tagged, nil
}
