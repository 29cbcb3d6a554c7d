package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pkg/utils"
)

// ErrInjected 是内存存储故障注入返回的错误。
var ErrInjected = core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "store: injected failure", errors.New("injected"))

// MemoryCandidateStore 是内存实现的 CandidateStore，用于测试/开发/原型。
// 返回的 Item 是副本，调用方在 Pipeline 中的修改不会回写。
type MemoryCandidateStore struct {
	mu     sync.RWMutex
	items  map[string]*core.Item
	users  map[string]*core.UserProfile
	topics map[int64]core.Topic

	fetchErr error
}

func NewMemoryCandidateStore() *MemoryCandidateStore {
	return &MemoryCandidateStore{
		items:  make(map[string]*core.Item),
		users:  make(map[string]*core.UserProfile),
		topics: make(map[int64]core.Topic),
	}
}

func (m *MemoryCandidateStore) Name() string { return "memory" }

// AddItems 写入内容；同 ID 覆盖。
func (m *MemoryCandidateStore) AddItems(items ...*core.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		m.items[it.ID] = cloneItem(it)
	}
}

// SetUser 写入用户偏好。
func (m *MemoryCandidateStore) SetUser(p *core.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.users[p.UserID] = &cp
}

// AddTopics 写入分类体系节点。
func (m *MemoryCandidateStore) AddTopics(topics ...core.Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range topics {
		m.topics[t.ID] = t
	}
}

// SetFetchError 设置后所有读操作返回该错误，nil 恢复正常。
func (m *MemoryCandidateStore) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

func (m *MemoryCandidateStore) FetchTaggedCandidates(ctx context.Context, since time.Time, limit int) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}

	out := make([]*core.Item, 0, len(m.items))
	for _, it := range m.items {
		if !it.Tagged || it.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryCandidateStore) FetchUserPreferences(ctx context.Context, userID string) (*core.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	p, ok := m.users[userID]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	cp := *p
	cp.SelectedTopicIDs = append([]int64(nil), p.SelectedTopicIDs...)
	cp.Embedding = append([]float64(nil), p.Embedding...)
	return &cp, nil
}

func (m *MemoryCandidateStore) LookupTopics(ctx context.Context, ids []int64) ([]core.Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]core.Topic, 0, len(ids))
	for _, id := range ids {
		if t, ok := m.topics[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryCandidateStore) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func cloneItem(it *core.Item) *core.Item {
	cp := *it
	cp.Topics.MicroTags = append([]string(nil), it.Topics.MicroTags...)
	cp.Embedding = append([]float64(nil), it.Embedding...)
	if len(cp.Embedding) == 0 {
		cp.Embedding = nil
	}
	cp.Breakdown = nil
	cp.Score = 0
	cp.Reason = ""
	cp.Labels = make(map[string]utils.Label)
	return &cp
}

// MemoryCacheStore 是内存实现的 CacheStore，用于测试/开发/原型。
// 支持一次性故障注入，用于验证备份恢复协议。
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]core.CacheEntry // userID -> itemID -> entry

	failInserts int
	inserts     int
	deletes     int
}

func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		entries: make(map[string]map[string]core.CacheEntry),
	}
}

func (m *MemoryCacheStore) Name() string { return "memory" }

// FailNextInserts 让接下来 n 次 InsertEntries 返回 ErrInjected。
func (m *MemoryCacheStore) FailNextInserts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInserts = n
}

// Writes 返回成功的 InsertEntries 与 DeleteEntries 调用次数。
func (m *MemoryCacheStore) Writes() (inserts, deletes int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inserts, m.deletes
}

func (m *MemoryCacheStore) ListEntries(ctx context.Context, userID string) ([]core.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.entries[userID]
	out := make([]core.CacheEntry, 0, len(rows))
	for _, e := range rows {
		out = append(out, e)
	}
	sortByPosition(out)
	return out, nil
}

func (m *MemoryCacheStore) DeleteEntries(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	m.deletes++
	return nil
}

func (m *MemoryCacheStore) InsertEntries(ctx context.Context, entries []core.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts > 0 {
		m.failInserts--
		return ErrInjected
	}
	for _, e := range entries {
		rows := m.entries[e.UserID]
		if rows == nil {
			rows = make(map[string]core.CacheEntry)
			m.entries[e.UserID] = rows
		}
		rows[e.ItemID] = e
	}
	m.inserts++
	return nil
}

var (
	_ core.CandidateStore = (*MemoryCandidateStore)(nil)
	_ core.CacheStore     = (*MemoryCacheStore)(nil)
)
