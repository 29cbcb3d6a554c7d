package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushteam/dropfeed/core"
)

type stubNode struct {
	name string
	fn   func([]*core.Item) ([]*core.Item, error)
}

func (n *stubNode) Name() string { return n.name }
func (n *stubNode) Kind() Kind   { return KindFilter }
func (n *stubNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return n.fn(items)
}

func emit(ids ...string) *stubNode {
	return &stubNode{name: "emit", fn: func([]*core.Item) ([]*core.Item, error) {
		out := make([]*core.Item, len(ids))
		for i, id := range ids {
			out[i] = core.NewItem(id)
		}
		return out, nil
	}}
}

func TestPipeline_Run(t *testing.T) {
	dropFirst := &stubNode{name: "drop_first", fn: func(items []*core.Item) ([]*core.Item, error) {
		return items[1:], nil
	}}
	var trace []string
	p := &Pipeline{
		Nodes: []Node{emit("a", "b", "c"), dropFirst},
		OnNode: func(n Node, in, out int) {
			trace = append(trace, n.Name()+":"+string(rune('0'+in))+"->"+string(rune('0'+out)))
		},
	}

	items, err := p.Run(context.Background(), &core.RecommendContext{UserID: "u"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != "b" {
		t.Errorf("items = %v", items)
	}
	if strings.Join(trace, ",") != "emit:0->3,drop_first:3->2" {
		t.Errorf("trace = %v", trace)
	}
}

func TestPipeline_RunErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &stubNode{name: "rank.score", fn: func([]*core.Item) ([]*core.Item, error) { return nil, boom }}
	p := &Pipeline{Nodes: []Node{emit("a"), failing}}

	_, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), "rank.score:") {
		t.Errorf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, &core.RecommendContext{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled err = %v", err)
	}
}

func TestConfig_LoadAndBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	content := `
name: test_feed
nodes:
  - type: emit
  - type: drop_first
    config:
      count: 1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromYAML(path)
	if err != nil {
		t.Fatalf("LoadFromYAML() error = %v", err)
	}
	if cfg.Name != "test_feed" || len(cfg.Nodes) != 2 || cfg.Nodes[1].Config["count"] != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}

	f := NewNodeFactory()
	f.Register("emit", func(map[string]any) (Node, error) { return emit("x"), nil })
	if _, err := cfg.BuildPipeline(f); err == nil || !strings.Contains(err.Error(), "drop_first") {
		t.Errorf("unknown type err = %v", err)
	}

	f.Register("drop_first", func(map[string]any) (Node, error) { return emit(), nil })
	p, err := cfg.BuildPipeline(f)
	if err != nil || len(p.Nodes) != 2 {
		t.Errorf("BuildPipeline() = %v, %v", p, err)
	}
	if !f.Has("emit") || f.Has("rank.mmoe") {
		t.Error("Has() mismatch")
	}

	if _, err := (&Config{Name: "empty"}).BuildPipeline(f); err == nil {
		t.Error("empty pipeline accepted")
	}
}
