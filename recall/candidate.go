package recall

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/utils"
)

// CandidateRecall 是候选获取 Node（Candidate Fetcher）。
//
// 从 Candidate Store 读取 Lookback 窗口内已打标的内容：
//   - 排除未打标内容
//   - 按入库时间降序，截断到 Limit 条
//   - 存储不可达时返回 CANDIDATE_FETCH_FAILED，只终止当前用户的运行
type CandidateRecall struct {
	Store core.CandidateStore

	// Lookback 回看窗口，默认 30 天
	Lookback time.Duration

	// Limit 候选上限，默认 500
	Limit int

	// Timeout 单次存储调用超时，默认 core.DefaultCallTimeout
	Timeout time.Duration
}

func (r *CandidateRecall) Name() string        { return "recall.candidate" }
func (r *CandidateRecall) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口；输入 items 被忽略，候选全部来自 Store。
func (r *CandidateRecall) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if r.Store == nil {
		return nil, core.CandidateFetchError(core.ErrStoreUnavailable)
	}

	lookback := r.Lookback
	if lookback <= 0 {
		lookback = core.DefaultLookback
	}
	limit := r.Limit
	if limit <= 0 {
		limit = core.DefaultCandidateLimit
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}

	since := rctx.Clock().Add(-lookback)

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	items, err := r.Store.FetchTaggedCandidates(fetchCtx, since, limit)
	if err != nil {
		return nil, core.CandidateFetchError(err)
	}

	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil || !it.Tagged {
			continue
		}
		it.PutLabel("recall_source", utils.Label{Value: r.Store.Name(), Source: "recall"})
		out = append(out, it)
	}

	// CandidateStore 的实现未必按 created_at 降序返回，这里统一排序后再截断
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	zerolog.Ctx(ctx).Debug().
		Int("fetched", len(items)).
		Int("candidates", len(out)).
		Time("since", since).
		Msg("candidates fetched")

	return out, nil
}
