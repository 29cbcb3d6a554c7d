// Package store 提供 core 包中存储接口的实现。
//
// 注意：此包只包含实现，接口定义在 core 包：
//
//	var candidates core.CandidateStore = store.NewMemoryCandidateStore()
//	var cache core.CacheStore = store.NewMemoryCacheStore()
//
//	sqlStore, _ := store.OpenSQLStore(ctx, "dropfeed.db")
//	var _ core.CandidateStore = sqlStore
//	var _ core.AtomicCacheStore = sqlStore
//	var _ core.FeedbackProvider = sqlStore
package store

import (
	"sort"

	"github.com/rushteam/dropfeed/core"
)

func sortByPosition(entries []core.CacheEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Position < entries[j].Position
	})
}
