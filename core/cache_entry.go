package core

import "time"

// CacheEntry 是持久化的单条排序结果，主键 (UserID, ItemID)。
//
// 约束：
//   - 同一用户同一代缓存中 Position 为 1..N 连续序列，ItemID 不重复
//   - 超过 ExpiresAt 的条目不得再被读出
//   - 按用户整体写入（all-or-nothing），由 cache.Manager 的备份/恢复协议保证
type CacheEntry struct {
	UserID     string    `json:"user_id"`
	ItemID     string    `json:"item_id"`
	FinalScore float64   `json:"final_score"`
	Reason     string    `json:"reason"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired 判断条目在 now 时刻是否已过期。
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Unexpired 过滤掉已过期的条目，保持原有顺序。
func Unexpired(entries []CacheEntry, now time.Time) []CacheEntry {
	out := make([]CacheEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Expired(now) {
			out = append(out, e)
		}
	}
	return out
}
