package core

import "context"

// FeedbackQuery 是一次历史反馈亲和度查询的参数。
type FeedbackQuery struct {
	UserID   string
	ItemID   string
	SourceID string
	Tags     []string
}

// FeedbackProvider 是历史互动亲和度服务的领域接口（外部协作方）。
//
// Affinity 返回 [0,1] 区间的亲和度。调用方对单条失败按 0 处理，
// 不会因单条失败放弃整批。
//
// 实现：
//   - store.SQLStore（feedback_affinity 表）
//   - feedback.FeastProvider（Feast 在线特征）
//   - feedback.BreakerProvider（熔断包装）
type FeedbackProvider interface {
	Name() string
	Affinity(ctx context.Context, q FeedbackQuery) (float64, error)
}
