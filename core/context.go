package core

import (
	"time"

	"github.com/rushteam/dropfeed/pkg/utils"
)

// RecommendContext 承载单个用户一次排序运行的上下文，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID string
	RunID  string

	// Trigger 是触发本次运行的来源：manual / onboarding_completed / scheduled
	Trigger string

	// User 是用户偏好画像，Hierarchy 由其 SelectedTopicIDs 展开
	User      *UserProfile
	Hierarchy *TopicHierarchy

	// Now 是本次运行的统一时间基准，保证同一运行内 recency 计算一致
	Now time.Time

	// Labels 是用户级标签，例如 cold_start
	Labels map[string]utils.Label

	// Params 请求级参数，例如 lookback、force
	Params map[string]any
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// Clock 返回本次运行的时间基准；未设置时取当前时间。
func (rctx *RecommendContext) Clock() time.Time {
	if rctx == nil || rctx.Now.IsZero() {
		return time.Now()
	}
	return rctx.Now
}
