package recall

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/store"
)

var testNow = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func seededStore() *store.MemoryCandidateStore {
	mem := store.NewMemoryCandidateStore()
	for i := 0; i < 6; i++ {
		it := core.NewItem(fmt.Sprintf("d%d", i))
		it.Tagged = true
		it.SourceID = "s"
		it.CreatedAt = testNow.Add(-time.Duration(i) * 24 * time.Hour)
		mem.AddItems(it)
	}
	old := core.NewItem("old")
	old.Tagged = true
	old.CreatedAt = testNow.Add(-40 * 24 * time.Hour)
	untagged := core.NewItem("untagged")
	untagged.CreatedAt = testNow
	mem.AddItems(old, untagged)

	mem.AddTopics(
		core.Topic{ID: 1, Level: core.TopicMacro},
		core.Topic{ID: 2, Level: core.TopicSub},
		core.Topic{ID: 3, Level: core.TopicMicro, Tag: "golang"},
	)
	return mem
}

func TestCandidateRecall(t *testing.T) {
	ctx := context.Background()
	rctx := &core.RecommendContext{UserID: "u1", Now: testNow}

	tests := []struct {
		name     string
		lookback time.Duration
		limit    int
		want     []string
	}{
		{"defaults exclude old and untagged", 0, 0, []string{"d0", "d1", "d2", "d3", "d4", "d5"}},
		{"limit keeps most recent", 0, 2, []string{"d0", "d1"}},
		{"short lookback", 50 * time.Hour, 0, []string{"d0", "d1", "d2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &CandidateRecall{Store: seededStore(), Lookback: tt.lookback, Limit: tt.limit}
			items, err := r.Process(ctx, rctx, nil)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if len(items) != len(tt.want) {
				t.Fatalf("got %d items, want %d", len(items), len(tt.want))
			}
			for i, it := range items {
				if it.ID != tt.want[i] {
					t.Errorf("items[%d] = %s, want %s", i, it.ID, tt.want[i])
				}
				if lbl, ok := it.Labels["recall_source"]; !ok || lbl.Value != "memory" {
					t.Errorf("items[%d] recall_source label = %+v", i, lbl)
				}
			}
		})
	}
}

func TestCandidateRecall_FetchFailure(t *testing.T) {
	mem := seededStore()
	mem.SetFetchError(errors.New("connection reset"))
	r := &CandidateRecall{Store: mem}

	_, err := r.Process(context.Background(), &core.RecommendContext{UserID: "u1", Now: testNow}, nil)
	if !core.IsCandidateFetchFailure(err) {
		t.Errorf("err = %v, want candidate fetch failure", err)
	}
}

func TestTopicResolver(t *testing.T) {
	r := &TopicResolver{Store: seededStore()}

	h, err := r.Resolve(context.Background(), []int64{1, 2, 3, 3, 99})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, ok := h.Macro[1]; !ok {
		t.Error("macro 1 missing")
	}
	if _, ok := h.Sub[2]; !ok {
		t.Error("sub 2 missing")
	}
	if _, ok := h.Micro["golang"]; !ok {
		t.Error("micro tag missing")
	}
	if len(h.Macro)+len(h.Sub)+len(h.Micro) != 3 {
		t.Errorf("unknown id leaked into hierarchy: %+v", h)
	}

	empty, err := (&TopicResolver{}).Resolve(context.Background(), nil)
	if err != nil || !empty.Empty() {
		t.Errorf("empty selection = %+v, %v", empty, err)
	}
}

func TestProfileLoader(t *testing.T) {
	mem := seededStore()
	u := core.NewUserProfile("u1")
	u.SelectedTopicIDs = []int64{2}
	mem.SetUser(u)
	loader := &ProfileLoader{Store: mem}

	rctx := &core.RecommendContext{UserID: "u1"}
	if err := loader.Load(context.Background(), rctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := rctx.Hierarchy.Sub[2]; !ok {
		t.Errorf("hierarchy = %+v", rctx.Hierarchy)
	}
	if _, ok := rctx.GetLabel("cold_start"); ok {
		t.Error("user with topics marked cold start")
	}

	// 没有偏好记录的用户按冷启动处理
	cold := &core.RecommendContext{UserID: "newcomer"}
	if err := loader.Load(context.Background(), cold); err != nil {
		t.Fatalf("Load(newcomer) error = %v", err)
	}
	if cold.User == nil || !cold.Hierarchy.Empty() {
		t.Errorf("cold profile = %+v %+v", cold.User, cold.Hierarchy)
	}
	if _, ok := cold.GetLabel("cold_start"); !ok {
		t.Error("cold_start label missing")
	}

	mem.SetFetchError(errors.New("timeout"))
	if err := loader.Load(context.Background(), &core.RecommendContext{UserID: "u1"}); !core.IsCandidateFetchFailure(err) {
		t.Errorf("err = %v, want candidate fetch failure", err)
	}
}

// reversedStore 以 created_at 升序返回候选。
type reversedStore struct {
	*store.MemoryCandidateStore
}

func (s reversedStore) FetchTaggedCandidates(ctx context.Context, since time.Time, limit int) ([]*core.Item, error) {
	items, err := s.MemoryCandidateStore.FetchTaggedCandidates(ctx, since, limit)
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, err
}

func TestCandidateRecall_OrdersUnsortedStore(t *testing.T) {
	rctx := &core.RecommendContext{UserID: "u1", Now: testNow}
	r := &CandidateRecall{Store: reversedStore{seededStore()}, Limit: 3}

	items, err := r.Process(context.Background(), rctx, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	want := []string{"d0", "d1", "d2"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if it.ID != want[i] {
			t.Errorf("items[%d] = %s, want %s", i, it.ID, want[i])
		}
	}
}
