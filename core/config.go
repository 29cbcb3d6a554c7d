package core

import "time"

// 排序与缓存的默认参数。
const (
	DefaultLookback       = 30 * 24 * time.Hour
	DefaultCandidateLimit = 500

	DefaultHalfLifeHours = 48.0
	DefaultFreshHours    = 24.0

	DefaultMaxItems     = 50
	DefaultMaxPerSource = 2

	DefaultFeedbackLimit = 50

	DefaultCacheTTL        = 6 * time.Hour
	DefaultCacheMaxAge     = 6 * time.Hour
	DefaultCacheMinEntries = 10

	DefaultCallTimeout = 5 * time.Second
)
