package rerank

import (
	"context"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/utils"
)

// DiversityNode 是多样性选择 ReRank 节点（Diversity Selector）。
//
// 规则：
//   - 存在视频候选时，分数最高的视频强制放在第 1 位，并计入其来源的配额
//   - 其余候选按分数降序（同分保持获取顺序）依次准入，
//     同一来源最多 MaxPerSource 条，总数最多 MaxItems 条
//
// 输出顺序即缓存中的 position（index+1），并写入 "position" label。
// 计数状态只存在于单次 Process 调用内。
type DiversityNode struct {
	// MaxItems 输出上限，默认 50
	MaxItems int
	// MaxPerSource 单来源上限，默认 2
	MaxPerSource int
}

func (n *DiversityNode) Name() string {
	return "rerank.diversity"
}

func (n *DiversityNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *DiversityNode) Process(
	ctx context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	maxItems := n.MaxItems
	if maxItems <= 0 {
		maxItems = core.DefaultMaxItems
	}
	maxPerSource := n.MaxPerSource
	if maxPerSource <= 0 {
		maxPerSource = core.DefaultMaxPerSource
	}

	sorted := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it != nil {
			sorted = append(sorted, it)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	perSource := make(map[string]int, 16)
	out := make([]*core.Item, 0, min(maxItems, len(sorted)))

	videoIdx := -1
	for i, it := range sorted {
		if it.IsVideo() {
			videoIdx = i
			break
		}
	}
	if videoIdx >= 0 {
		video := sorted[videoIdx]
		video.PutLabel("video_quota", utils.Label{Value: "forced_first", Source: "rerank"})
		out = append(out, video)
		perSource[video.SourceID]++
	}

	capped := 0
	for i, it := range sorted {
		if len(out) >= maxItems {
			break
		}
		if i == videoIdx {
			continue
		}
		if perSource[it.SourceID] >= maxPerSource {
			capped++
			continue
		}
		perSource[it.SourceID]++
		out = append(out, it)
	}

	for i, it := range out {
		it.PutLabel("position", utils.Label{Value: strconv.Itoa(i + 1), Source: "rerank"})
	}
	if capped > 0 {
		metrics.CandidatesDropped.WithLabelValues("source_cap").Add(float64(capped))
	}
	zerolog.Ctx(ctx).Debug().
		Int("in", len(items)).
		Int("out", len(out)).
		Int("source_capped", capped).
		Bool("video_forced", videoIdx >= 0).
		Msg("diversity selection done")
	return out, nil
}
