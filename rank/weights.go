package rank

// Weights 是打分各分量的线性权重。
//
//	base     = Recency*recency + Trust*trust + Popularity*popularity
//	personal = Topic*topicMatch + Embedding*embeddingSimilarity + Feedback*feedback + Diversity*diversityBonus
//	final    = Base*base + Personal*personal
type Weights struct {
	Recency    float64 `yaml:"recency" json:"recency"`
	Trust      float64 `yaml:"trust" json:"trust"`
	Popularity float64 `yaml:"popularity" json:"popularity"`

	Topic     float64 `yaml:"topic" json:"topic"`
	Embedding float64 `yaml:"embedding" json:"embedding"`
	Feedback  float64 `yaml:"feedback" json:"feedback"`
	Diversity float64 `yaml:"diversity" json:"diversity"`

	Base     float64 `yaml:"base" json:"base"`
	Personal float64 `yaml:"personal" json:"personal"`
}

// DefaultWeights 返回默认权重。
func DefaultWeights() Weights {
	return Weights{
		Recency:    0.30,
		Trust:      0.25,
		Popularity: 0.15,
		Topic:      0.30,
		Embedding:  0.35,
		Feedback:   0.25,
		Diversity:  0.10,
		Base:       0.35,
		Personal:   0.65,
	}
}

// IsZero 判断是否未设置（全部为 0）。
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// 主题命中分档
const (
	TopicMacroScore = 1.0
	TopicSubScore   = 0.8
	TopicMicroScore = 0.6

	// 缺少向量时的代理相似度：有主题命中给 0.6，否则 0.3，避免冷启动用户被饿死
	EmbeddingFallbackMatched = 0.6
	EmbeddingFallbackNone    = 0.3

	DiversityBonusFull    = 1.0
	DiversityBonusReduced = 0.5
	DefaultDiversityQuota = 3

	// popularity 归一化的对数底：log(1+p)/log(1000)
	PopularityScale = 1000.0
)
