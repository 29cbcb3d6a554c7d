package core

// TopicLevel 是主题在三级分类体系中的层级。
type TopicLevel string

const (
	TopicMacro TopicLevel = "macro"
	TopicSub   TopicLevel = "sub"
	TopicMicro TopicLevel = "micro"
)

// Topic 是分类体系中的一个节点。micro 层级以 Tag 字符串参与匹配。
type Topic struct {
	ID    int64
	Level TopicLevel
	Tag   string
}

// TopicHierarchy 是每次运行从用户所选主题展开的三级集合，只用于打分，不持久化。
type TopicHierarchy struct {
	Macro map[int64]struct{}
	Sub   map[int64]struct{}
	Micro map[string]struct{}
}

func NewTopicHierarchy() *TopicHierarchy {
	return &TopicHierarchy{
		Macro: make(map[int64]struct{}),
		Sub:   make(map[int64]struct{}),
		Micro: make(map[string]struct{}),
	}
}

// Add 按层级把主题放入对应集合；未知层级忽略。
func (h *TopicHierarchy) Add(t Topic) {
	switch t.Level {
	case TopicMacro:
		h.Macro[t.ID] = struct{}{}
	case TopicSub:
		h.Sub[t.ID] = struct{}{}
	case TopicMicro:
		if t.Tag != "" {
			h.Micro[t.Tag] = struct{}{}
		}
	}
}

// Empty 判断是否没有任何偏好。nil 视为空。
func (h *TopicHierarchy) Empty() bool {
	return h == nil || len(h.Macro)+len(h.Sub)+len(h.Micro) == 0
}

// MatchTier 返回内容命中的最高层级：macro > sub > micro，先命中者生效；未命中返回空串。
func (h *TopicHierarchy) MatchTier(t Topics) TopicLevel {
	if h.Empty() {
		return ""
	}
	if _, ok := h.Macro[t.MacroID]; ok && t.MacroID != 0 {
		return TopicMacro
	}
	if _, ok := h.Sub[t.SubID]; ok && t.SubID != 0 {
		return TopicSub
	}
	for _, tag := range t.MicroTags {
		if _, ok := h.Micro[tag]; ok {
			return TopicMicro
		}
	}
	return ""
}
