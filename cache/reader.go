package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
)

// ReasonRecent 是回退结果使用的原因文案。
const ReasonRecent = "Recent content"

// Feed 是消费方（feed API、digest 构建）读取到的用户信息流。
type Feed struct {
	UserID  string            `json:"user_id"`
	Entries []core.CacheEntry `json:"entries"`
	// Fallback 为 true 表示没有有效缓存，Entries 是按入库时间倒序的未排序结果
	Fallback bool `json:"fallback"`
}

// FeedReader 为消费方读取缓存；没有缓存时回退为按时间倒序的直接查询，而不是报错。
type FeedReader struct {
	Cache      *Manager
	Candidates core.CandidateStore

	// Lookback / Limit 控制回退查询，默认 30 天 / 50 条
	Lookback time.Duration
	Limit    int
}

// Read 返回用户信息流。缓存读取失败同样走回退路径。
func (r *FeedReader) Read(ctx context.Context, userID string) (*Feed, error) {
	logger := zerolog.Ctx(ctx)

	entries, err := r.Cache.Feed(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", userID).Msg("cache read failed, falling back to recent content")
	}
	if err == nil && len(entries) > 0 {
		return &Feed{UserID: userID, Entries: entries}, nil
	}
	return r.fallback(ctx, userID)
}

func (r *FeedReader) fallback(ctx context.Context, userID string) (*Feed, error) {
	feed := &Feed{UserID: userID, Entries: []core.CacheEntry{}, Fallback: true}
	if r.Candidates == nil {
		return feed, nil
	}

	lookback := r.Lookback
	if lookback <= 0 {
		lookback = core.DefaultLookback
	}
	limit := r.Limit
	if limit <= 0 {
		limit = core.DefaultMaxItems
	}

	now := r.Cache.now()
	callCtx, cancel := r.Cache.callCtx(ctx)
	defer cancel()
	items, err := r.Candidates.FetchTaggedCandidates(callCtx, now.Add(-lookback), limit)
	if err != nil {
		return nil, core.CandidateFetchError(err)
	}
	for i, it := range items {
		feed.Entries = append(feed.Entries, core.CacheEntry{
			UserID:    userID,
			ItemID:    it.ID,
			Reason:    ReasonRecent,
			Position:  i + 1,
			CreatedAt: it.CreatedAt,
		})
	}
	return feed, nil
}
