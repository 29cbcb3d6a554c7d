package recall

import (
	"context"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pkg/utils"
)

// ProfileLoader 为一次运行准备用户画像与主题集合，写入 RecommendContext。
type ProfileLoader struct {
	Store    core.CandidateStore
	Resolver *TopicResolver
	Timeout  time.Duration
}

// Load 读取用户偏好并展开主题集合。
// 用户尚无偏好记录时视为冷启动：画像为空，并打上 cold_start 标签，不报错。
func (l *ProfileLoader) Load(ctx context.Context, rctx *core.RecommendContext) error {
	if l.Store == nil {
		return core.CandidateFetchError(core.ErrStoreUnavailable)
	}
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}

	prefCtx, cancel := context.WithTimeout(ctx, timeout)
	profile, err := l.Store.FetchUserPreferences(prefCtx, rctx.UserID)
	cancel()
	switch {
	case core.IsStoreNotFound(err):
		profile = core.NewUserProfile(rctx.UserID)
	case err != nil:
		return core.CandidateFetchError(err)
	}

	resolver := l.Resolver
	if resolver == nil {
		resolver = &TopicResolver{Store: l.Store, Timeout: timeout}
	}
	hierarchy, err := resolver.Resolve(ctx, profile.SelectedTopicIDs)
	if err != nil {
		return err
	}

	rctx.User = profile
	rctx.Hierarchy = hierarchy
	if hierarchy.Empty() && !profile.HasEmbedding() {
		rctx.PutLabel("cold_start", utils.Label{Value: "true", Source: "recall"})
	}
	return nil
}
