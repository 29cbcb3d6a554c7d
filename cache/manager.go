// Package cache 管理每个用户排序结果缓存的有效性判断、重新生成与备份恢复。
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
)

// Outcome 是一次 Refresh 的结果分类。
type Outcome string

const (
	OutcomePreserved   Outcome = "preserved"   // 缓存有效，未写入
	OutcomeRegenerated Outcome = "regenerated" // 写入了新一代缓存
	OutcomeRestored    Outcome = "restored"    // 写入失败或结果为空，旧缓存已恢复并延期
	OutcomeEmpty       Outcome = "empty"       // 结果为空且没有可恢复的备份，写入 0 条
	OutcomeFailed      Outcome = "failed"      // 生成失败（旧缓存未动）或写入与恢复都失败
)

// Generator 为用户生成新的排序结果，顺序即 position。
// 返回错误时缓存保持不动。
type Generator func(ctx context.Context) ([]*core.Item, error)

// RefreshResult 是一次 Refresh 的详细结果。
type RefreshResult struct {
	State    State
	Outcome  Outcome
	Written  int // 新写入的条目数
	Restored int // 恢复的备份条目数
}

// Manager 是缓存管理器（Smart Cache）。
//
// 协议：
//  1. 持有用户级锁，读取当前条目并判断状态（锁内复查，保证同一用户串行）
//  2. VALID 且非强制：直接返回
//  3. 运行 Generator；失败则旧缓存保持不动
//  4. 结果非空：整体替换（AtomicCacheStore 用事务，否则 delete + insert）
//  5. 写入失败，或结果为空而旧缓存非空：把旧条目重新写入，ExpiresAt 延长为 now+TTL
//
// 备份只保存在内存中，Refresh 返回后即丢弃。
type Manager struct {
	Store  core.CacheStore
	Policy Policy

	// Timeout 单次缓存存储调用超时，默认 core.DefaultCallTimeout
	Timeout time.Duration

	// Now 可注入时钟，默认 time.Now
	Now func() time.Time

	locks keyedMutex
}

// NewManager 创建缓存管理器。
func NewManager(store core.CacheStore, policy Policy) *Manager {
	return &Manager{
		Store:  store,
		Policy: policy.withDefaults(),
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = core.DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// writeCtx 为写入与恢复创建独立于调用方取消的上下文，只受 Timeout 约束。
// 用户预算耗尽时，已开始的 delete + insert 与随后的恢复仍能完成。
func (m *Manager) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return m.callCtx(context.WithoutCancel(ctx))
}

func (m *Manager) list(ctx context.Context, userID string) ([]core.CacheEntry, error) {
	callCtx, cancel := m.callCtx(ctx)
	defer cancel()
	return m.Store.ListEntries(callCtx, userID)
}

// Check 返回用户缓存的当前状态。
func (m *Manager) Check(ctx context.Context, userID string) (State, error) {
	entries, err := m.list(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list cache entries: %w", err)
	}
	return Evaluate(entries, m.now(), m.Policy), nil
}

// Feed 返回用户未过期的缓存条目，按 position 升序。
func (m *Manager) Feed(ctx context.Context, userID string) ([]core.CacheEntry, error) {
	entries, err := m.list(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	return core.Unexpired(entries, m.now()), nil
}

// Refresh 在需要时为用户重新生成缓存。force 为 true 时忽略有效性判断。
//
// 写入失败时返回 CACHE_WRITE_FAILED（此时 Outcome 为 restored 或 failed），
// 调用方应按告警处理；Generator 的错误原样返回，Outcome 为 failed。
func (m *Manager) Refresh(ctx context.Context, userID string, force bool, generate Generator) (RefreshResult, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	logger := zerolog.Ctx(ctx)
	res := RefreshResult{Outcome: OutcomeFailed}

	backup, err := m.list(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("list cache entries: %w", err)
	}
	res.State = Evaluate(backup, m.now(), m.Policy)
	if !force && !res.State.NeedsRegeneration() {
		res.Outcome = OutcomePreserved
		return res, nil
	}

	items, err := generate(ctx)
	if err != nil {
		return res, err
	}

	now := m.now()
	fresh := buildEntries(userID, items, now, m.Policy.withDefaults().TTL)
	if len(fresh) == 0 {
		if len(backup) == 0 {
			if err := m.clear(ctx, userID); err != nil {
				return res, core.CacheWriteError(err)
			}
			res.Outcome = OutcomeEmpty
			return res, nil
		}
		logger.Info().Int("backup", len(backup)).Msg("empty ranking, restoring previous cache")
		return m.restore(ctx, userID, backup, now, res, nil)
	}

	if err := m.replace(ctx, userID, fresh); err != nil {
		logger.Warn().Err(err).Int("backup", len(backup)).Msg("cache write failed, restoring previous cache")
		if len(backup) == 0 {
			return res, core.CacheWriteError(err)
		}
		return m.restore(ctx, userID, backup, now, res, err)
	}

	metrics.CacheEntriesWritten.Add(float64(len(fresh)))
	res.Outcome = OutcomeRegenerated
	res.Written = len(fresh)
	return res, nil
}

// restore 把备份条目以延长后的有效期写回。writeErr 非空表示本次是因写入失败而恢复。
func (m *Manager) restore(
	ctx context.Context,
	userID string,
	backup []core.CacheEntry,
	now time.Time,
	res RefreshResult,
	writeErr error,
) (RefreshResult, error) {
	expiresAt := now.Add(m.Policy.withDefaults().TTL)
	restored := make([]core.CacheEntry, len(backup))
	for i, e := range backup {
		e.ExpiresAt = expiresAt
		restored[i] = e
	}

	if err := m.replace(ctx, userID, restored); err != nil {
		return res, core.CacheWriteError(errors.Join(writeErr, fmt.Errorf("restore backup: %w", err)))
	}
	metrics.CacheRestores.Inc()
	res.Outcome = OutcomeRestored
	res.Restored = len(restored)
	if writeErr != nil {
		return res, core.CacheWriteError(writeErr)
	}
	return res, nil
}

// replace 整体替换用户条目。
func (m *Manager) replace(ctx context.Context, userID string, entries []core.CacheEntry) error {
	callCtx, cancel := m.writeCtx(ctx)
	defer cancel()

	if atomic, ok := m.Store.(core.AtomicCacheStore); ok {
		return atomic.ReplaceEntries(callCtx, userID, entries)
	}
	if err := m.Store.DeleteEntries(callCtx, userID); err != nil {
		return err
	}
	return m.Store.InsertEntries(callCtx, entries)
}

func (m *Manager) clear(ctx context.Context, userID string) error {
	callCtx, cancel := m.writeCtx(ctx)
	defer cancel()
	return m.Store.DeleteEntries(callCtx, userID)
}

// buildEntries 把排序结果转换为缓存条目：position 从 1 连续编号，重复的 itemID 只保留第一次出现。
func buildEntries(userID string, items []*core.Item, now time.Time, ttl time.Duration) []core.CacheEntry {
	out := make([]core.CacheEntry, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, core.CacheEntry{
			UserID:     userID,
			ItemID:     it.ID,
			FinalScore: it.Score,
			Reason:     it.Reason,
			Position:   len(out) + 1,
			CreatedAt:  now,
			ExpiresAt:  now.Add(ttl),
		})
	}
	return out
}
