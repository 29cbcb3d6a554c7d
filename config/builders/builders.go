// Package builders 注册 dropfeed 内置的 Pipeline Node 构建器。
package builders

import (
	"fmt"
	"time"

	"github.com/rushteam/dropfeed/config"
	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/feedback"
	"github.com/rushteam/dropfeed/filter"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/conv"
	"github.com/rushteam/dropfeed/rank"
	"github.com/rushteam/dropfeed/recall"
	"github.com/rushteam/dropfeed/rerank"
)

func init() {
	config.Register("filter.tagged", BuildTaggedFilterNode)
	config.Register("filter.blocklist", BuildBlocklistFilterNode)
	config.Register("filter.expr", BuildExprFilterNode)
	config.Register("rerank.diversity", BuildDiversityNode)

	config.Declare("recall.candidate")
	config.Declare("rank.score")
}

// Deps 是需要运行时对象的 Node 所依赖的组件。
type Deps struct {
	Candidates core.CandidateStore
	// Feedback 为空时 rank.score 的 feedback 分量恒为 0
	Feedback *feedback.Lookup
	// Similarity 为空时使用进程内余弦相似度
	Similarity  core.SimilarityService
	Ranking     config.RankingConfig
	CallTimeout time.Duration
}

// NewFactory 返回包含全部内置 Node 的工厂，recall.candidate 与 rank.score 绑定到 deps。
func NewFactory(deps Deps) *pipeline.NodeFactory {
	f := config.DefaultFactory()
	f.Register("recall.candidate", func(cfg map[string]any) (pipeline.Node, error) {
		return buildCandidateNode(deps, cfg)
	})
	f.Register("rank.score", func(cfg map[string]any) (pipeline.Node, error) {
		return buildScoreNode(deps, cfg)
	})
	// 未在 node config 中覆盖的选择参数取 Ranking 默认值
	f.Register("rerank.diversity", func(cfg map[string]any) (pipeline.Node, error) {
		node, err := BuildDiversityNode(cfg)
		if err != nil {
			return nil, err
		}
		d := node.(*rerank.DiversityNode)
		if _, ok := cfg["max_items"]; !ok {
			d.MaxItems = deps.Ranking.MaxItems
		}
		if _, ok := cfg["max_per_source"]; !ok {
			d.MaxPerSource = deps.Ranking.MaxPerSource
		}
		return d, nil
	})
	return f
}

func buildCandidateNode(deps Deps, cfg map[string]any) (pipeline.Node, error) {
	if deps.Candidates == nil {
		return nil, fmt.Errorf("recall.candidate: candidate store not configured")
	}
	lookback, err := conv.ConfigGetDuration(cfg, "lookback", deps.Ranking.Lookback)
	if err != nil {
		return nil, fmt.Errorf("recall.candidate: %w", err)
	}
	return &recall.CandidateRecall{
		Store:    deps.Candidates,
		Lookback: lookback,
		Limit:    int(conv.ConfigGetInt64(cfg, "limit", int64(deps.Ranking.CandidateLimit))),
		Timeout:  deps.CallTimeout,
	}, nil
}

func buildScoreNode(deps Deps, cfg map[string]any) (pipeline.Node, error) {
	w := deps.Ranking.Weights
	if w.IsZero() {
		w = rank.DefaultWeights()
	}
	if raw, ok := cfg["weights"].(map[string]any); ok {
		overrides := conv.MapToFloat64(raw)
		for key, v := range overrides {
			if err := setWeight(&w, key, v); err != nil {
				return nil, fmt.Errorf("rank.score: %w", err)
			}
		}
	}
	simTimeout, err := conv.ConfigGetDuration(cfg, "similarity_timeout", deps.Ranking.SimilarityTimeout)
	if err != nil {
		return nil, fmt.Errorf("rank.score: %w", err)
	}

	return &rank.ScoreNode{
		Weights:           w,
		HalfLifeHours:     conv.ConfigGetFloat64(cfg, "half_life_hours", deps.Ranking.HalfLifeHours),
		FreshHours:        conv.ConfigGetFloat64(cfg, "fresh_hours", deps.Ranking.FreshHours),
		DiversityQuota:    int(conv.ConfigGetInt64(cfg, "diversity_quota", int64(deps.Ranking.DiversityQuota))),
		Similarity:        deps.Similarity,
		SimilarityTimeout: simTimeout,
		Feedback:          deps.Feedback,
	}, nil
}

func setWeight(w *rank.Weights, key string, v float64) error {
	switch key {
	case "recency":
		w.Recency = v
	case "trust":
		w.Trust = v
	case "popularity":
		w.Popularity = v
	case "topic":
		w.Topic = v
	case "embedding":
		w.Embedding = v
	case "feedback":
		w.Feedback = v
	case "diversity":
		w.Diversity = v
	case "base":
		w.Base = v
	case "personal":
		w.Personal = v
	default:
		return fmt.Errorf("unknown weight %q", key)
	}
	return nil
}

func BuildTaggedFilterNode(_ map[string]any) (pipeline.Node, error) {
	return &filter.FilterNode{
		Filters:  []filter.Filter{&filter.TaggedFilter{}},
		NodeName: "filter.tagged",
	}, nil
}

func BuildBlocklistFilterNode(cfg map[string]any) (pipeline.Node, error) {
	itemIDs := conv.SliceAnyToString(cfg["item_ids"])
	sourceIDs := conv.SliceAnyToString(cfg["source_ids"])
	if len(itemIDs) == 0 && len(sourceIDs) == 0 {
		return nil, fmt.Errorf("filter.blocklist: item_ids or source_ids required")
	}
	return &filter.FilterNode{
		Filters:  []filter.Filter{filter.NewBlocklistFilter(itemIDs, sourceIDs)},
		NodeName: "filter.blocklist",
	}, nil
}

// BuildExprFilterNode 支持单条 expr 或多条 exprs，任一表达式为 true 即排除该候选。
func BuildExprFilterNode(cfg map[string]any) (pipeline.Node, error) {
	exprs := conv.SliceAnyToString(cfg["exprs"])
	if e := conv.ConfigGet(cfg, "expr", ""); e != "" {
		exprs = append(exprs, e)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("filter.expr: expr not found")
	}
	filters := make([]filter.Filter, 0, len(exprs))
	for _, e := range exprs {
		f, err := filter.NewExprFilter(e)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return &filter.FilterNode{Filters: filters, NodeName: "filter.expr"}, nil
}

func BuildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	maxItems := conv.ConfigGetInt64(cfg, "max_items", core.DefaultMaxItems)
	maxPerSource := conv.ConfigGetInt64(cfg, "max_per_source", core.DefaultMaxPerSource)
	if maxItems <= 0 || maxPerSource <= 0 {
		return nil, fmt.Errorf("rerank.diversity: max_items and max_per_source must be positive")
	}
	return &rerank.DiversityNode{MaxItems: int(maxItems), MaxPerSource: int(maxPerSource)}, nil
}
