package rank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/feedback"
	"github.com/rushteam/dropfeed/metrics"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/utils"
	"github.com/rushteam/dropfeed/vector"
)

// ScoreNode 是多信号打分 Node（Scorer）。
//
// 对每个候选计算 recency / trust / popularity 基础分，以及 topic / embedding /
// feedback / diversity 个性化分，合成 [0,1] 区间的最终分并写入 item.Score、
// item.Breakdown、item.Reason，最后按分数稳定降序排序。
//
// 单条候选打分失败（信号非有限值、向量维度不一致、相似度超时）只丢弃该条，
// 不会中断当前用户的运行。
type ScoreNode struct {
	Weights Weights

	// HalfLifeHours 是 recency 的半衰期，默认 48 小时
	HalfLifeHours float64

	// FreshHours 小于该小时数的内容给出 "Fresh content" 原因，默认 24
	FreshHours float64

	// DiversityQuota 是享受满额多样性加成的来源数，默认 3
	DiversityQuota int

	// Similarity 为空时使用进程内余弦相似度
	Similarity        core.SimilarityService
	SimilarityTimeout time.Duration

	// Feedback 为空时所有候选 feedback 为 0
	Feedback *feedback.Lookup
}

func (n *ScoreNode) Name() string        { return "rank.score" }
func (n *ScoreNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *ScoreNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	logger := zerolog.Ctx(ctx)
	now := rctx.Clock()
	w := n.weights()

	// 第一轮：基础分。基础信号非法的候选在这里丢弃。
	scored := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		b, err := n.baseScore(it, now, w)
		if err != nil {
			n.drop(logger, it, err)
			continue
		}
		it.Breakdown = b
		scored = append(scored, it)
	}

	affinity := n.Feedback.Collect(ctx, userID(rctx), feedbackCandidates(scored, n.Feedback))

	// 第二轮：个性化分，按获取顺序扫描，多样性加成依赖扫描顺序（软启发式）。
	sourcesSeen := make(map[string]struct{}, 8)
	out := make([]*core.Item, 0, len(scored))
	for _, it := range scored {
		if err := n.personalScore(ctx, rctx, it, w, affinity, sourcesSeen); err != nil {
			n.drop(logger, it, err)
			continue
		}
		sourcesSeen[it.SourceID] = struct{}{}

		b := it.Breakdown
		b.Final = clamp01(w.Base*b.Base + w.Personal*b.Personal)
		it.Score = b.Final
		it.Reason = buildReason(b, it.Age(now).Hours(), n.freshHours())
		it.PutLabel("rank_model", utils.Label{Value: n.Name(), Source: "rank"})
		if b.TopicTier != "" {
			it.PutLabel("topic_tier", utils.Label{Value: string(b.TopicTier), Source: "rank"})
		}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (n *ScoreNode) weights() Weights {
	if n.Weights.IsZero() {
		return DefaultWeights()
	}
	return n.Weights
}

func (n *ScoreNode) freshHours() float64 {
	if n.FreshHours > 0 {
		return n.FreshHours
	}
	return core.DefaultFreshHours
}

func (n *ScoreNode) baseScore(it *core.Item, now time.Time, w Weights) (*core.ScoreBreakdown, error) {
	signals := [...]struct {
		name  string
		value float64
	}{
		{"authority", it.Authority},
		{"quality", it.Quality},
		{"popularity", it.Popularity},
	}
	for _, sig := range signals {
		if math.IsNaN(sig.value) || math.IsInf(sig.value, 0) {
			return nil, core.ScoringError(it.ID, fmt.Errorf("%s is not finite", sig.name))
		}
	}

	halfLife := n.HalfLifeHours
	if halfLife <= 0 {
		halfLife = core.DefaultHalfLifeHours
	}
	hoursOld := it.Age(now).Hours()

	b := &core.ScoreBreakdown{
		Recency:    clamp01(math.Exp(-hoursOld * math.Ln2 / halfLife)),
		Trust:      clamp01((it.Authority + it.Quality) / 2),
		Popularity: clamp01(math.Log1p(math.Max(0, it.Popularity)) / math.Log(PopularityScale)),
	}
	b.Base = w.Recency*b.Recency + w.Trust*b.Trust + w.Popularity*b.Popularity
	return b, nil
}

func (n *ScoreNode) personalScore(
	ctx context.Context,
	rctx *core.RecommendContext,
	it *core.Item,
	w Weights,
	affinity map[string]float64,
	sourcesSeen map[string]struct{},
) error {
	b := it.Breakdown

	var hierarchy *core.TopicHierarchy
	if rctx != nil {
		hierarchy = rctx.Hierarchy
	}
	b.TopicTier = hierarchy.MatchTier(it.Topics)
	switch b.TopicTier {
	case core.TopicMacro:
		b.TopicMatch = TopicMacroScore
	case core.TopicSub:
		b.TopicMatch = TopicSubScore
	case core.TopicMicro:
		b.TopicMatch = TopicMicroScore
	}

	sim, fallback, err := n.embeddingSimilarity(ctx, rctx, it, b.TopicMatch)
	if err != nil {
		return core.ScoringError(it.ID, err)
	}
	b.EmbeddingSimilarity = sim
	b.EmbeddingFallback = fallback

	b.Feedback = affinity[it.ID]

	quota := n.DiversityQuota
	if quota <= 0 {
		quota = DefaultDiversityQuota
	}
	b.DiversityBonus = DiversityBonusReduced
	if len(sourcesSeen) < quota {
		b.DiversityBonus = DiversityBonusFull
	}

	b.Personal = w.Topic*b.TopicMatch + w.Embedding*b.EmbeddingSimilarity +
		w.Feedback*b.Feedback + w.Diversity*b.DiversityBonus
	return nil
}

// embeddingSimilarity 返回 [0,1] 相似度；任一向量缺失时返回代理值，fallback=true。
func (n *ScoreNode) embeddingSimilarity(
	ctx context.Context,
	rctx *core.RecommendContext,
	it *core.Item,
	topicMatch float64,
) (float64, bool, error) {
	var user *core.UserProfile
	if rctx != nil {
		user = rctx.User
	}
	if !user.HasEmbedding() || len(it.Embedding) == 0 {
		if topicMatch > 0 {
			return EmbeddingFallbackMatched, true, nil
		}
		return EmbeddingFallbackNone, true, nil
	}

	svc := n.Similarity
	if svc == nil {
		svc = vector.NewLocalService()
	}
	timeout := n.SimilarityTimeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}
	simCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cosine, err := svc.Similarity(simCtx, user.Embedding, it.Embedding)
	if err != nil {
		return 0, false, err
	}
	return vector.SimilarityToUnit(cosine), false, nil
}

func (n *ScoreNode) drop(logger *zerolog.Logger, it *core.Item, err error) {
	metrics.CandidatesDropped.WithLabelValues("scoring").Inc()
	logger.Debug().Err(err).Str("item_id", it.ID).Msg("candidate dropped")
}

// feedbackCandidates 选出需要查询反馈分的候选：按基础分降序取前 Limit 条。
func feedbackCandidates(items []*core.Item, l *feedback.Lookup) []*core.Item {
	if l == nil || l.Provider == nil {
		return nil
	}
	limit := l.Limit
	if limit <= 0 {
		limit = core.DefaultFeedbackLimit
	}
	ranked := make([]*core.Item, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Breakdown.Base > ranked[j].Breakdown.Base
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func userID(rctx *core.RecommendContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.UserID
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
