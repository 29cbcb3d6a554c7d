package recall

import (
	"context"
	"time"

	"github.com/rushteam/dropfeed/core"
)

// TopicResolver 把用户所选主题 ID 展开为三级集合（Topic Hierarchy Resolver）。
// 对每个 ID 查询其层级并分桶；micro 层级以 Tag 字符串入桶。
type TopicResolver struct {
	Store   core.CandidateStore
	Timeout time.Duration
}

// Resolve 返回 TopicHierarchy。没有任何所选主题时返回空集合且不报错，
// 此时打分阶段的 topicMatch 退化为 0。
func (r *TopicResolver) Resolve(ctx context.Context, selected []int64) (*core.TopicHierarchy, error) {
	h := core.NewTopicHierarchy()
	if len(selected) == 0 {
		return h, nil
	}
	if r.Store == nil {
		return nil, core.CandidateFetchError(core.ErrStoreUnavailable)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	topics, err := r.Store.LookupTopics(lookupCtx, dedupIDs(selected))
	if err != nil {
		return nil, core.CandidateFetchError(err)
	}
	for _, t := range topics {
		h.Add(t)
	}
	return h, nil
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
