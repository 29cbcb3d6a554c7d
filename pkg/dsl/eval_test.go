package dsl

import (
	"testing"
	"time"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pkg/utils"
)

func TestExpr_Match(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	item := core.NewItem("d1")
	item.Kind = core.KindVideo
	item.Language = "de"
	item.SourceID = "src-1"
	item.Score = 0.8
	item.PublishedAt = now.Add(-100 * time.Hour)
	item.Topics = core.Topics{MacroID: 5, SubID: 12, MicroTags: []string{"golang", "sponsored"}}
	item.PutLabel("recall_source", utils.Label{Value: "recall.candidate", Source: "recall"})
	rctx := &core.RecommendContext{UserID: "u1", Trigger: "scheduled", Now: now}

	tests := []struct {
		expr string
		want bool
	}{
		{`item.language != "en"`, true},
		{`item.kind == "video" && item.age_hours > 72.0`, true},
		{`"sponsored" in item.micro_tags`, true},
		{`item.macro_id == 5 && item.sub_id == 7`, false},
		{`item.score >= 0.5`, true},
		{`has(label.recall_source) && label.recall_source.startsWith("recall.")`, true},
		{`has(label.missing)`, false},
		{`rctx.trigger == "manual"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := e.Match(item, rctx)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile(`item.score >`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestExpr_NonBoolResult(t *testing.T) {
	e, err := Compile(`item.score`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := e.Match(core.NewItem("x"), nil); err == nil {
		t.Fatal("expected error for non-boolean result")
	}
}

func TestEval_EmptyExpression(t *testing.T) {
	ok, err := Eval("", core.NewItem("x"), nil)
	if err != nil || !ok {
		t.Fatalf("Eval(\"\") = %v, %v; want true, nil", ok, err)
	}
}
