package core

import "time"

// UserProfile 是用户偏好画像（UserPreferenceProfile）。
//
// 由外部 onboarding / 设置流程维护，引擎只读：
//   - SelectedTopicIDs：用户选择的主题 ID，可以是任意层级（macro / sub / micro）
//   - Embedding：用户偏好的聚合向量，冷启动用户可能为空
type UserProfile struct {
	UserID           string
	SelectedTopicIDs []int64
	Embedding        []float64
	UpdateTime       time.Time
}

// NewUserProfile 创建一个空的用户画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:           userID,
		SelectedTopicIDs: make([]int64, 0),
	}
}

// HasEmbedding 判断是否有可用的偏好向量。
func (p *UserProfile) HasEmbedding() bool {
	return p != nil && len(p.Embedding) > 0
}

// HasTopics 判断用户是否选择过主题。
func (p *UserProfile) HasTopics() bool {
	return p != nil && len(p.SelectedTopicIDs) > 0
}
