package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/store"
)

func TestFeedReader_ReturnsCache(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryCacheStore()
	_ = s.InsertEntries(ctx, entries("u1", 3, testNow.Add(-time.Hour)))
	r := &FeedReader{Cache: newTestManager(s), Candidates: store.NewMemoryCandidateStore()}

	feed, err := r.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if feed.Fallback || len(feed.Entries) != 3 {
		t.Errorf("feed = %+v", feed)
	}
}

func TestFeedReader_FallsBackToRecent(t *testing.T) {
	ctx := context.Background()
	candidates := store.NewMemoryCandidateStore()
	candidates.AddItems(
		&core.Item{ID: "older", Tagged: true, CreatedAt: testNow.Add(-5 * time.Hour)},
		&core.Item{ID: "newer", Tagged: true, CreatedAt: testNow.Add(-1 * time.Hour)},
	)
	s := store.NewMemoryCacheStore()
	// 只有过期条目
	_ = s.InsertEntries(ctx, entries("u1", 3, testNow.Add(-48*time.Hour)))
	r := &FeedReader{Cache: newTestManager(s), Candidates: candidates}

	feed, err := r.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !feed.Fallback || len(feed.Entries) != 2 {
		t.Fatalf("feed = %+v", feed)
	}
	if feed.Entries[0].ItemID != "newer" || feed.Entries[0].Position != 1 || feed.Entries[0].Reason != ReasonRecent {
		t.Errorf("first entry = %+v", feed.Entries[0])
	}
}

func TestFeedReader_FallbackStoreFailure(t *testing.T) {
	candidates := store.NewMemoryCandidateStore()
	candidates.SetFetchError(store.ErrInjected)
	r := &FeedReader{Cache: newTestManager(store.NewMemoryCacheStore()), Candidates: candidates}

	if _, err := r.Read(context.Background(), "u1"); !core.IsCandidateFetchFailure(err) {
		t.Errorf("err = %v, want candidate fetch failure", err)
	}
}
