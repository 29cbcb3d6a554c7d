package filter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/utils"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉。
type FilterNode struct {
	Filters []Filter

	// NodeName 用于区分同一 Pipeline 中的多个过滤节点，默认 "filter.node"
	NodeName string
}

func (n *FilterNode) Name() string {
	if n.NodeName != "" {
		return n.NodeName
	}
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	logger := zerolog.Ctx(ctx)
	out := make([]*core.Item, 0, len(items))
	filteredCount := 0

	for _, item := range items {
		if item == nil {
			continue
		}

		shouldFilter := false
		filterReason := ""

		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时保留物品，不中断流程
				logger.Debug().Err(err).Str("filter", f.Name()).Str("item_id", item.ID).Msg("filter error")
				continue
			}
			if ok {
				shouldFilter = true
				filterReason = f.Name()
				break
			}
		}

		if shouldFilter {
			filteredCount++
			item.PutLabel("filtered", utils.Label{
				Value:  "true",
				Source: filterReason,
			})
			continue
		}

		out = append(out, item)
	}

	if filteredCount > 0 {
		metrics.CandidatesDropped.WithLabelValues("filter").Add(float64(filteredCount))
	}
	return out, nil
}
