package store

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/rushteam/dropfeed/core"
)

// RedisCacheStore 是 Redis 实现的 AtomicCacheStore。
// 每个用户一个 hash：{KeyPrefix}{userID}，field 为 itemID，value 为 JSON 编码的 CacheEntry；
// key 的过期时间对齐该用户最晚的 ExpiresAt。生产环境常用，支持持久化、集群、哨兵等。
type RedisCacheStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCacheStore 连接 Redis 并 Ping 确认可用。
func NewRedisCacheStore(ctx context.Context, addr, password string, db int, keyPrefix string) (*RedisCacheStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis ping", err)
	}
	if keyPrefix == "" {
		keyPrefix = "dropfeed:feed:"
	}
	return &RedisCacheStore{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RedisCacheStore) Name() string { return "redis" }

func (r *RedisCacheStore) key(userID string) string {
	return r.keyPrefix + userID
}

func (r *RedisCacheStore) ListEntries(ctx context.Context, userID string) ([]core.CacheEntry, error) {
	vals, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis hgetall", err)
	}
	entries := make([]core.CacheEntry, 0, len(vals))
	for itemID, raw := range vals {
		var e core.CacheEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode cache entry %s/%s: %w", userID, itemID, err)
		}
		entries = append(entries, e)
	}
	sortByPosition(entries)
	return entries, nil
}

func (r *RedisCacheStore) DeleteEntries(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis del", err)
	}
	return nil
}

func (r *RedisCacheStore) InsertEntries(ctx context.Context, entries []core.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	byUser := make(map[string][]core.CacheEntry)
	for _, e := range entries {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for userID, rows := range byUser {
			if err := r.queueWrite(ctx, pipe, userID, rows); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis insert", err)
	}
	return nil
}

// ReplaceEntries 用 MULTI/EXEC 原子地删除旧 hash 并写入新条目。
func (r *RedisCacheStore) ReplaceEntries(ctx context.Context, userID string, entries []core.CacheEntry) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(userID))
		return r.queueWrite(ctx, pipe, userID, entries)
	})
	if err != nil {
		return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis replace", err)
	}
	return nil
}

func (r *RedisCacheStore) queueWrite(ctx context.Context, pipe redis.Pipeliner, userID string, entries []core.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	fields := make(map[string]any, len(entries))
	var expireAt time.Time
	for _, e := range entries {
		if e.UserID != userID {
			return fmt.Errorf("entry for %q in batch of %q", e.UserID, userID)
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode cache entry %s/%s: %w", userID, e.ItemID, err)
		}
		fields[e.ItemID] = raw
		if e.ExpiresAt.After(expireAt) {
			expireAt = e.ExpiresAt
		}
	}
	key := r.key(userID)
	pipe.HSet(ctx, key, fields)
	pipe.ExpireAt(ctx, key, expireAt)
	return nil
}

func (r *RedisCacheStore) Close() error {
	return r.client.Close()
}

var _ core.AtomicCacheStore = (*RedisCacheStore)(nil)
