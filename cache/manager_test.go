package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/store"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func entries(userID string, n int, createdAt time.Time) []core.CacheEntry {
	out := make([]core.CacheEntry, n)
	for i := range out {
		out[i] = core.CacheEntry{
			UserID:     userID,
			ItemID:     fmt.Sprintf("old-%02d", i),
			FinalScore: 0.5,
			Reason:     "Relevant content",
			Position:   i + 1,
			CreatedAt:  createdAt,
			ExpiresAt:  createdAt.Add(24 * time.Hour),
		}
	}
	return out
}

func rankedItems(n int) []*core.Item {
	out := make([]*core.Item, n)
	for i := range out {
		it := core.NewItem(fmt.Sprintf("new-%02d", i))
		it.Score = 1 - float64(i)/100
		it.Reason = "Fresh content"
		out[i] = it
	}
	return out
}

func generatorOf(items []*core.Item, calls *int32) Generator {
	return func(context.Context) ([]*core.Item, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return items, nil
	}
}

func newTestManager(s core.CacheStore) *Manager {
	m := NewManager(s, DefaultPolicy())
	m.Now = func() time.Time { return testNow }
	return m
}

func TestEvaluate(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name    string
		entries []core.CacheEntry
		want    State
	}{
		{"no entries", nil, StateAbsent},
		{"all expired", entries("u", 12, testNow.Add(-30*time.Hour)), StateAbsent},
		{"twelve entries aged 7h", entries("u", 12, testNow.Add(-7*time.Hour)), StateStale},
		{"fewer than ten", entries("u", 9, testNow.Add(-time.Hour)), StateStale},
		{"ten fresh", entries("u", 10, testNow.Add(-time.Hour)), StateValid},
		{"exactly six hours old", entries("u", 10, testNow.Add(-6*time.Hour)), StateValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.entries, testNow, p); got != tt.want {
				t.Errorf("Evaluate() = %s, want %s", got, tt.want)
			}
		})
	}

	mixed := append(entries("u", 10, testNow.Add(-time.Hour)), core.CacheEntry{
		UserID: "u", ItemID: "stale-one", Position: 11,
		CreatedAt: testNow.Add(-7 * time.Hour), ExpiresAt: testNow.Add(time.Hour),
	})
	if got := Evaluate(mixed, testNow, p); got != StateStale {
		t.Errorf("one old unexpired entry: Evaluate() = %s, want STALE", got)
	}
}

func TestManager_RegeneratesStaleCache(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	_ = s.InsertEntries(ctx, entries("u1", 12, testNow.Add(-7*time.Hour)))
	m := newTestManager(s)

	res, err := m.Refresh(ctx, "u1", false, generatorOf(rankedItems(15), nil))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.State != StateStale || res.Outcome != OutcomeRegenerated || res.Written != 15 {
		t.Fatalf("result = %+v", res)
	}

	feed, _ := m.Feed(ctx, "u1")
	if len(feed) != 15 {
		t.Fatalf("len(feed) = %d, want 15", len(feed))
	}
	for i, e := range feed {
		if e.Position != i+1 {
			t.Errorf("position[%d] = %d", i, e.Position)
		}
		if !e.ExpiresAt.Equal(testNow.Add(6 * time.Hour)) {
			t.Errorf("expires_at = %v", e.ExpiresAt)
		}
		if e.ItemID[:4] != "new-" {
			t.Errorf("old entry %s survived", e.ItemID)
		}
	}
}

func TestManager_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	m := newTestManager(s)
	var calls int32

	if _, err := m.Refresh(ctx, "u1", false, generatorOf(rankedItems(20), &calls)); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	insertsBefore, deletesBefore := s.Writes()

	res, err := m.Refresh(ctx, "u1", false, generatorOf(rankedItems(20), &calls))
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if res.State != StateValid || res.Outcome != OutcomePreserved {
		t.Errorf("second result = %+v", res)
	}
	inserts, deletes := s.Writes()
	if inserts != insertsBefore || deletes != deletesBefore {
		t.Errorf("second run wrote to the store: inserts %d->%d deletes %d->%d", insertsBefore, inserts, deletesBefore, deletes)
	}
	if calls != 1 {
		t.Errorf("generator calls = %d, want 1", calls)
	}
}

func TestManager_ForceIgnoresValidity(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	_ = s.InsertEntries(ctx, entries("u1", 12, testNow.Add(-time.Hour)))
	m := newTestManager(s)

	res, err := m.Refresh(ctx, "u1", true, generatorOf(rankedItems(3), nil))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.State != StateValid || res.Outcome != OutcomeRegenerated || res.Written != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestManager_RestoresOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	prior := entries("u1", 8, testNow.Add(-2*time.Hour))
	_ = s.InsertEntries(ctx, prior)
	m := newTestManager(s)

	s.FailNextInserts(1)
	res, err := m.Refresh(ctx, "u1", false, generatorOf(rankedItems(30), nil))
	if !core.IsCacheWriteFailure(err) {
		t.Fatalf("err = %v, want cache write failure", err)
	}
	if res.Outcome != OutcomeRestored || res.Restored != len(prior) {
		t.Fatalf("result = %+v", res)
	}

	feed, _ := m.Feed(ctx, "u1")
	if len(feed) != len(prior) {
		t.Fatalf("len(feed) = %d, want %d", len(feed), len(prior))
	}
	for i, e := range feed {
		if e.ItemID != prior[i].ItemID || e.Position != prior[i].Position {
			t.Errorf("entry %d = %s@%d, want %s@%d", i, e.ItemID, e.Position, prior[i].ItemID, prior[i].Position)
		}
		if !e.ExpiresAt.Equal(testNow.Add(6 * time.Hour)) {
			t.Errorf("expiry not extended: %v", e.ExpiresAt)
		}
		if !e.CreatedAt.Equal(prior[i].CreatedAt) {
			t.Errorf("created_at changed: %v", e.CreatedAt)
		}
	}
}

func TestManager_EmptyResultRestoresBackup(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	_ = s.InsertEntries(ctx, entries("u1", 4, testNow.Add(-8*time.Hour)))
	m := newTestManager(s)

	res, err := m.Refresh(ctx, "u1", false, generatorOf(nil, nil))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Outcome != OutcomeRestored || res.Restored != 4 {
		t.Fatalf("result = %+v", res)
	}
	feed, _ := m.Feed(ctx, "u1")
	if len(feed) != 4 {
		t.Errorf("len(feed) = %d, want 4", len(feed))
	}
}

func TestManager_EmptyResultWithoutBackup(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(store.NewMemoryCacheStore())

	res, err := m.Refresh(ctx, "u1", false, generatorOf([]*core.Item{}, nil))
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.State != StateAbsent || res.Outcome != OutcomeEmpty || res.Written != 0 {
		t.Errorf("result = %+v", res)
	}
	feed, err := m.Feed(ctx, "u1")
	if err != nil || len(feed) != 0 {
		t.Errorf("Feed() = %v, %v", feed, err)
	}
}

func TestManager_GeneratorFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	prior := entries("u1", 5, testNow.Add(-time.Hour))
	_ = s.InsertEntries(ctx, prior)
	m := newTestManager(s)
	insertsBefore, _ := s.Writes()

	boom := core.CandidateFetchError(errors.New("store down"))
	res, err := m.Refresh(ctx, "u1", false, func(context.Context) ([]*core.Item, error) { return nil, boom })
	if !core.IsCandidateFetchFailure(err) || res.Outcome != OutcomeFailed {
		t.Fatalf("Refresh() = %+v, %v", res, err)
	}
	got, _ := s.ListEntries(ctx, "u1")
	if len(got) != 5 || !got[0].ExpiresAt.Equal(prior[0].ExpiresAt) {
		t.Errorf("cache modified: %+v", got)
	}
	if inserts, deletes := s.Writes(); inserts != insertsBefore || deletes != 0 {
		t.Errorf("writes happened: %d inserts, %d deletes", inserts, deletes)
	}
}

func TestManager_AtomicStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLStore(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLStore() error = %v", err)
	}
	defer s.Close()
	_ = s.InsertEntries(ctx, entries("u1", 3, testNow.Add(-time.Hour)))
	m := newTestManager(s)

	res, err := m.Refresh(ctx, "u1", false, generatorOf(rankedItems(12), nil))
	if err != nil || res.Outcome != OutcomeRegenerated {
		t.Fatalf("Refresh() = %+v, %v", res, err)
	}
	feed, _ := m.Feed(ctx, "u1")
	if len(feed) != 12 || feed[0].ItemID != "new-00" {
		t.Errorf("feed = %+v", feed)
	}
}

func TestManager_DeduplicatesItems(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(store.NewMemoryCacheStore())
	items := rankedItems(3)
	items = append(items, items[0])

	res, err := m.Refresh(ctx, "u1", false, generatorOf(items, nil))
	if err != nil || res.Written != 3 {
		t.Fatalf("Refresh() = %+v, %v", res, err)
	}
}

func TestManager_SerializesSameUser(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(store.NewMemoryCacheStore())

	var (
		running, maxRunning int32
		calls               int32
		wg                  sync.WaitGroup
	)
	gen := func(context.Context) ([]*core.Item, error) {
		atomic.AddInt32(&calls, 1)
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&maxRunning)
			if n <= old || atomic.CompareAndSwapInt32(&maxRunning, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return rankedItems(12), nil
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Refresh(ctx, "u1", false, gen)
		}()
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("max concurrent generations = %d, want 1", maxRunning)
	}
	// 第一个写入后其余请求在锁内复查到 VALID，不再生成
	if calls != 1 {
		t.Errorf("generator calls = %d, want 1", calls)
	}
}

// stallingCacheStore 让前 stall 次 InsertEntries 阻塞到 ctx 结束。
type stallingCacheStore struct {
	*store.MemoryCacheStore
	stall int32
}

func (s *stallingCacheStore) InsertEntries(ctx context.Context, entries []core.CacheEntry) error {
	if atomic.AddInt32(&s.stall, -1) >= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.MemoryCacheStore.InsertEntries(ctx, entries)
}

func TestManager_RestoresAfterUserBudgetExpires(t *testing.T) {
	s := &stallingCacheStore{MemoryCacheStore: store.NewMemoryCacheStore(), stall: 1}
	prior := entries("u1", 12, testNow.Add(-7*time.Hour))
	_ = s.MemoryCacheStore.InsertEntries(context.Background(), prior)
	m := newTestManager(s)
	m.Timeout = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// 生成耗尽了用户预算，写入开始时 ctx 已过期
	gen := func(ctx context.Context) ([]*core.Item, error) {
		<-ctx.Done()
		return rankedItems(15), nil
	}

	res, err := m.Refresh(ctx, "u1", false, gen)
	if !core.IsCacheWriteFailure(err) {
		t.Fatalf("err = %v, want cache write failure", err)
	}
	if res.Outcome != OutcomeRestored || res.Restored != len(prior) {
		t.Fatalf("result = %+v", res)
	}
	got, _ := s.ListEntries(context.Background(), "u1")
	if len(got) != len(prior) {
		t.Fatalf("entries left = %d, want %d", len(got), len(prior))
	}
	for _, e := range got {
		if !e.ExpiresAt.Equal(testNow.Add(6 * time.Hour)) {
			t.Errorf("expiry not extended: %v", e.ExpiresAt)
		}
	}
}
