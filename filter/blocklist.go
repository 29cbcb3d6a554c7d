package filter

import (
	"context"

	"github.com/rushteam/dropfeed/core"
)

// BlocklistFilter 是黑名单过滤器，按物品 ID 或来源 ID 过滤。
type BlocklistFilter struct {
	itemIDs   map[string]struct{}
	sourceIDs map[string]struct{}
}

// NewBlocklistFilter 创建一个黑名单过滤器。
func NewBlocklistFilter(itemIDs, sourceIDs []string) *BlocklistFilter {
	f := &BlocklistFilter{
		itemIDs:   make(map[string]struct{}, len(itemIDs)),
		sourceIDs: make(map[string]struct{}, len(sourceIDs)),
	}
	for _, id := range itemIDs {
		f.itemIDs[id] = struct{}{}
	}
	for _, id := range sourceIDs {
		f.sourceIDs[id] = struct{}{}
	}
	return f
}

func (f *BlocklistFilter) Name() string {
	return "filter.blocklist"
}

func (f *BlocklistFilter) ShouldFilter(
	_ context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if _, ok := f.itemIDs[item.ID]; ok {
		return true, nil
	}
	_, ok := f.sourceIDs[item.SourceID]
	return ok, nil
}
