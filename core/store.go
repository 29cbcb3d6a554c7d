package core

import (
	"context"
	"time"
)

// CandidateStore 是候选内容存储的领域接口（外部协作方）。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 行数据在边界处转换为强类型结构（Item / UserProfile / Topic），不向下游传递松散的 map
//
// 实现：
//   - store.SQLStore 实现此接口（SQLite）
//   - store.MemoryCandidateStore 实现此接口（测试/开发）
type CandidateStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// FetchTaggedCandidates 获取 since 之后入库且已打标的内容，按入库时间降序，最多 limit 条。
	// 返回的 Item 已解析 SourceName。
	FetchTaggedCandidates(ctx context.Context, since time.Time, limit int) ([]*Item, error)

	// FetchUserPreferences 获取用户的主题偏好与偏好向量；用户不存在时返回 ErrStoreNotFound。
	FetchUserPreferences(ctx context.Context, userID string) (*UserProfile, error)

	// LookupTopics 查询主题 ID 对应的层级；不存在的 ID 直接忽略。
	LookupTopics(ctx context.Context, ids []int64) ([]Topic, error)

	// ListUserIDs 列出所有有偏好设置的用户，供定时批处理使用。
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CacheStore 是排序结果缓存的领域接口。
//
// 约束：
//   - ListEntries 返回用户的全部条目（含已过期），按 Position 升序
//   - DeleteEntries 删除用户的全部条目
//   - InsertEntries 写入一批条目，(UserID, ItemID) 冲突时覆盖
//
// 实现：
//   - store.MemoryCacheStore
//   - store.RedisCacheStore（同时实现 AtomicCacheStore）
//   - store.SQLStore（同时实现 AtomicCacheStore）
type CacheStore interface {
	Name() string
	ListEntries(ctx context.Context, userID string) ([]CacheEntry, error)
	DeleteEntries(ctx context.Context, userID string) error
	InsertEntries(ctx context.Context, entries []CacheEntry) error
}

// AtomicCacheStore 是支持按用户事务性整体替换的缓存存储。
// ReplaceEntries 要么完整写入 entries（entries 为空时即清空），要么保持原状。
type AtomicCacheStore interface {
	CacheStore
	ReplaceEntries(ctx context.Context, userID string, entries []CacheEntry) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示记录不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")

	// ErrStoreUnavailable 表示存储不可用
	ErrStoreUnavailable = NewDomainError(ModuleStore, ErrorCodeUnavailable, "store: unavailable")
)

// IsStoreNotFound 检查错误是否为 store 模块的 NOT_FOUND
func IsStoreNotFound(err error) bool {
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}
