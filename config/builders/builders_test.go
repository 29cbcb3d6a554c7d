package builders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/dropfeed/config"
	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/filter"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/rank"
	"github.com/rushteam/dropfeed/recall"
	"github.com/rushteam/dropfeed/rerank"
	"github.com/rushteam/dropfeed/store"
)

func testDeps() Deps {
	return Deps{
		Candidates:  store.NewMemoryCandidateStore(),
		Ranking:     config.Default().Ranking,
		CallTimeout: 2 * time.Second,
	}
}

func TestNewFactory_DefaultPipeline(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	if err := config.ValidatePipelineConfig(&cfg); err != nil {
		t.Fatalf("ValidatePipelineConfig() error = %v", err)
	}

	p, err := cfg.BuildPipeline(NewFactory(testDeps()))
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if len(p.Nodes) != 4 {
		t.Fatalf("nodes = %d, want 4", len(p.Nodes))
	}
	wantKinds := []pipeline.Kind{pipeline.KindRecall, pipeline.KindFilter, pipeline.KindRank, pipeline.KindReRank}
	for i, n := range p.Nodes {
		if n.Kind() != wantKinds[i] {
			t.Errorf("node %d (%s) kind = %s, want %s", i, n.Name(), n.Kind(), wantKinds[i])
		}
	}

	rec := p.Nodes[0].(*recall.CandidateRecall)
	if rec.Lookback != core.DefaultLookback || rec.Limit != core.DefaultCandidateLimit {
		t.Errorf("recall = %+v", rec)
	}
	div := p.Nodes[3].(*rerank.DiversityNode)
	if div.MaxItems != 50 || div.MaxPerSource != 2 {
		t.Errorf("diversity = %+v", div)
	}
}

func TestNewFactory_NodeOverrides(t *testing.T) {
	f := NewFactory(testDeps())

	n, err := f.Build("recall.candidate", map[string]any{"lookback": "72h", "limit": 100})
	if err != nil {
		t.Fatalf("Build(recall.candidate) error = %v", err)
	}
	rec := n.(*recall.CandidateRecall)
	if rec.Lookback != 72*time.Hour || rec.Limit != 100 || rec.Timeout != 2*time.Second {
		t.Errorf("recall = %+v", rec)
	}

	n, err = f.Build("rank.score", map[string]any{
		"weights":         map[string]any{"recency": 0.5, "personal": 0.7},
		"half_life_hours": 24,
	})
	if err != nil {
		t.Fatalf("Build(rank.score) error = %v", err)
	}
	score := n.(*rank.ScoreNode)
	if score.Weights.Recency != 0.5 || score.Weights.Personal != 0.7 || score.Weights.Trust != 0.25 {
		t.Errorf("weights = %+v", score.Weights)
	}
	if score.HalfLifeHours != 24 || score.FreshHours != core.DefaultFreshHours {
		t.Errorf("score = %+v", score)
	}

	if _, err := f.Build("rank.score", map[string]any{"weights": map[string]any{"ctr": 1}}); err == nil {
		t.Error("unknown weight accepted")
	}

	n, err = f.Build("rerank.diversity", map[string]any{"max_per_source": 1})
	if err != nil {
		t.Fatalf("Build(rerank.diversity) error = %v", err)
	}
	if d := n.(*rerank.DiversityNode); d.MaxPerSource != 1 || d.MaxItems != 50 {
		t.Errorf("diversity = %+v", d)
	}
}

func TestNewFactory_RecallRequiresStore(t *testing.T) {
	deps := testDeps()
	deps.Candidates = nil
	if _, err := NewFactory(deps).Build("recall.candidate", nil); err == nil {
		t.Error("expected error without candidate store")
	}
}

func TestBuildExprFilterNode(t *testing.T) {
	n, err := BuildExprFilterNode(map[string]any{
		"expr":  `item.language != "en"`,
		"exprs": []any{`item.kind == "video" && item.age_hours > 168.0`},
	})
	if err != nil {
		t.Fatalf("BuildExprFilterNode() error = %v", err)
	}
	fn := n.(*filter.FilterNode)
	if fn.Name() != "filter.expr" || len(fn.Filters) != 2 {
		t.Fatalf("node = %s with %d filters", fn.Name(), len(fn.Filters))
	}

	en := core.NewItem("en")
	en.Language = "en"
	fr := core.NewItem("fr")
	fr.Language = "fr"
	out, err := fn.Process(context.Background(), &core.RecommendContext{UserID: "u"}, []*core.Item{en, fr})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != "en" {
		t.Errorf("out = %v", out)
	}

	if _, err := BuildExprFilterNode(map[string]any{"expr": "item.language =="}); err == nil {
		t.Error("invalid expression accepted")
	}
	if _, err := BuildExprFilterNode(nil); err == nil || !strings.Contains(err.Error(), "expr") {
		t.Errorf("missing expr err = %v", err)
	}
}

func TestBuildBlocklistFilterNode(t *testing.T) {
	if _, err := BuildBlocklistFilterNode(map[string]any{}); err == nil {
		t.Error("empty blocklist accepted")
	}
	n, err := BuildBlocklistFilterNode(map[string]any{"source_ids": []any{"spam"}})
	if err != nil {
		t.Fatalf("BuildBlocklistFilterNode() error = %v", err)
	}
	if n.Name() != "filter.blocklist" {
		t.Errorf("name = %s", n.Name())
	}
}

func TestExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/dropfeed.example.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	deps := testDeps()
	deps.Ranking = cfg.Ranking
	p, err := cfg.Pipeline.BuildPipeline(NewFactory(deps))
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	if len(p.Nodes) != 5 || p.Nodes[2].Name() != "filter.expr" {
		t.Errorf("nodes = %d", len(p.Nodes))
	}
	if cfg.Feedback.Provider != "sql" || !cfg.Feedback.Breaker.Enabled {
		t.Errorf("feedback = %+v", cfg.Feedback)
	}
}
