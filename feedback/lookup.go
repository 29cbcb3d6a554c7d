// Package feedback 提供历史反馈亲和度的查询实现与包装。
package feedback

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
)

// Lookup 对一批候选做有界的反馈分查询。
//
//   - 最多查询 Limit 条（默认 50），控制外部调用量
//   - 并发度 Concurrency（默认 10）
//   - 每条查询独立超时，失败或超时按 0 处理，不影响同批其他条目
type Lookup struct {
	Provider    core.FeedbackProvider
	Limit       int
	Concurrency int
	Timeout     time.Duration
}

// Collect 返回 itemID -> affinity；未查询或失败的条目不出现在结果中，调用方按 0 处理。
func (l *Lookup) Collect(ctx context.Context, userID string, items []*core.Item) map[string]float64 {
	out := make(map[string]float64)
	if l == nil || l.Provider == nil || len(items) == 0 {
		return out
	}

	limit := l.Limit
	if limit <= 0 {
		limit = core.DefaultFeedbackLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	concurrency := l.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}

	var (
		mu     sync.Mutex
		eg     errgroup.Group
		logger = zerolog.Ctx(ctx)
	)
	eg.SetLimit(concurrency)

	for _, it := range items {
		if it == nil {
			continue
		}
		item := it
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			score, err := l.Provider.Affinity(callCtx, core.FeedbackQuery{
				UserID:   userID,
				ItemID:   item.ID,
				SourceID: item.SourceID,
				Tags:     item.Topics.MicroTags,
			})
			if err == nil && (math.IsNaN(score) || math.IsInf(score, 0)) {
				err = core.NewDomainError(core.ModuleFeedback, core.ErrorCodeInvalidInput, "non-finite affinity")
			}
			if err != nil {
				metrics.FeedbackLookupFailures.Inc()
				logger.Debug().
					Err(err).
					Str("item_id", item.ID).
					Str("provider", l.Provider.Name()).
					Msg("feedback lookup failed, using 0")
				return nil
			}

			mu.Lock()
			out[item.ID] = clamp01(score)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// StaticProvider 是基于内存表的实现，key 为 userID + "\x00" + itemID。
// 用于测试与无反馈数据的部署。
type StaticProvider struct {
	Scores map[string]float64
	Err    error
}

// StaticKey 生成 StaticProvider 的 key。
func StaticKey(userID, itemID string) string {
	return userID + "\x00" + itemID
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Affinity(_ context.Context, q core.FeedbackQuery) (float64, error) {
	if p.Err != nil {
		return 0, p.Err
	}
	return p.Scores[StaticKey(q.UserID, q.ItemID)], nil
}

var _ core.FeedbackProvider = (*StaticProvider)(nil)
