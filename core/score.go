package core

// ScoreBreakdown 是一次排序运行中单个 (user, item) 的打分明细，不持久化。
//
//	base     = 0.30*Recency + 0.25*Trust + 0.15*Popularity
//	personal = 0.30*TopicMatch + 0.35*EmbeddingSimilarity + 0.25*Feedback + 0.10*DiversityBonus
//	final    = 0.35*base + 0.65*personal
type ScoreBreakdown struct {
	Recency    float64
	Trust      float64
	Popularity float64
	Base       float64

	TopicMatch          float64
	TopicTier           TopicLevel
	EmbeddingSimilarity float64
	EmbeddingFallback   bool
	Feedback            float64
	DiversityBonus      float64
	Personal            float64

	Final float64
}
