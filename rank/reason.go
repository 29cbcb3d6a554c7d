package rank

import (
	"strings"

	"github.com/rushteam/dropfeed/core"
)

const (
	ReasonFresh        = "Fresh content"
	ReasonTopicMacro   = "Matches your interests"
	ReasonTopicSub     = "Related to your interests"
	ReasonTopicMicro   = "Matches topics you follow"
	ReasonQuality      = "High quality source"
	ReasonEmbedding    = "Content matches your reading patterns"
	ReasonFeedback     = "Similar content liked before"
	ReasonDefault      = "Relevant content"
	reasonSeparator    = " • "
	maxReasonFragments = 2
)

// buildReason 按优先级拼接最多两条可读原因；都不满足时返回 "Relevant content"。
func buildReason(b *core.ScoreBreakdown, hoursOld, freshHours float64) string {
	parts := make([]string, 0, maxReasonFragments)
	add := func(ok bool, s string) {
		if ok && len(parts) < maxReasonFragments {
			parts = append(parts, s)
		}
	}

	add(hoursOld < freshHours, ReasonFresh)
	switch b.TopicTier {
	case core.TopicMacro:
		add(true, ReasonTopicMacro)
	case core.TopicSub:
		add(true, ReasonTopicSub)
	case core.TopicMicro:
		add(true, ReasonTopicMicro)
	}
	add(b.Trust > 0.7, ReasonQuality)
	add(b.EmbeddingSimilarity > 0.7, ReasonEmbedding)
	add(b.Feedback > 0.1, ReasonFeedback)

	if len(parts) == 0 {
		return ReasonDefault
	}
	return strings.Join(parts, reasonSeparator)
}
