package cache

import (
	"time"

	"github.com/rushteam/dropfeed/core"
)

// State 是用户缓存的有效性状态。
type State string

const (
	// StateValid 缓存充足且新鲜，跳过重新生成
	StateValid State = "VALID"
	// StateStale 缓存存在但条数不足或过旧，需要备份后重新生成
	StateStale State = "STALE"
	// StateAbsent 没有未过期的缓存，直接生成
	StateAbsent State = "ABSENT"
)

// NeedsRegeneration 判断该状态是否需要重新生成。
func (s State) NeedsRegeneration() bool {
	return s != StateValid
}

// Policy 是缓存有效性与过期策略。
type Policy struct {
	// TTL 新写入（及恢复）条目的有效期，默认 6 小时
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// MaxAge 未过期条目的最大年龄，超过即视为过旧，默认 6 小时
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
	// MinEntries 未过期条目少于该数视为不足，默认 10
	MinEntries int `yaml:"min_entries" json:"min_entries"`
}

// DefaultPolicy 返回默认策略。
func DefaultPolicy() Policy {
	return Policy{
		TTL:        core.DefaultCacheTTL,
		MaxAge:     core.DefaultCacheMaxAge,
		MinEntries: core.DefaultCacheMinEntries,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TTL <= 0 {
		p.TTL = d.TTL
	}
	if p.MaxAge <= 0 {
		p.MaxAge = d.MaxAge
	}
	if p.MinEntries <= 0 {
		p.MinEntries = d.MinEntries
	}
	return p
}

// Evaluate 根据用户当前全部条目判断缓存状态：
//   - 没有未过期条目：ABSENT
//   - 未过期条目少于 MinEntries，或任一未过期条目的创建时间早于 now-MaxAge：STALE
//   - 否则 VALID
func Evaluate(entries []core.CacheEntry, now time.Time, p Policy) State {
	p = p.withDefaults()
	live := core.Unexpired(entries, now)
	if len(live) == 0 {
		return StateAbsent
	}
	if len(live) < p.MinEntries {
		return StateStale
	}
	oldest := now.Add(-p.MaxAge)
	for _, e := range live {
		if e.CreatedAt.Before(oldest) {
			return StateStale
		}
	}
	return StateValid
}
