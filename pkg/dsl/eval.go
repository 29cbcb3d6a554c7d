package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/dropfeed/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Expr 是编译后的 Label DSL 表达式，使用 CEL (Common Expression Language) 实现。
// 编译一次，可在多个 goroutine 中对不同 item 重复求值。
//
// 可用变量：
//   - item.id / item.kind / item.language / item.source / item.source_name
//   - item.score / item.authority / item.quality / item.popularity / item.age_hours
//   - item.macro_id / item.sub_id / item.micro_tags
//   - label.<key>：label 的 Value；访问前用 `has(label.key)` 判断是否存在
//   - rctx.user_id / rctx.trigger / rctx.params
//
// 示例：
//   - `item.language != "en"`
//   - `item.kind == "video" && item.age_hours > 72.0`
//   - `"sponsored" in item.micro_tags`
type Expr struct {
	src string
	prg cel.Program
}

// Compile 编译表达式；表达式必须返回布尔值。
func Compile(expr string) (*Expr, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	return &Expr{src: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (e *Expr) String() string { return e.src }

// Match 对 item 求值。
func (e *Expr) Match(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	out, _, err := e.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// Eval 编译并求值一次，便于临时表达式；高频场景使用 Compile。
func Eval(expr string, item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	e, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Match(item, rctx)
}

func buildInput(it *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any, len(it.Labels))
	for k, v := range it.Labels {
		labels[k] = v.Value
	}

	microTags := make([]string, len(it.Topics.MicroTags))
	copy(microTags, it.Topics.MicroTags)

	item := map[string]any{
		"id":          it.ID,
		"kind":        string(it.Kind),
		"language":    it.Language,
		"source":      it.SourceID,
		"source_name": it.SourceName,
		"score":       it.Score,
		"authority":   it.Authority,
		"quality":     it.Quality,
		"popularity":  it.Popularity,
		"age_hours":   it.Age(rctx.Clock()).Hours(),
		"macro_id":    it.Topics.MacroID,
		"sub_id":      it.Topics.SubID,
		"micro_tags":  microTags,
	}

	ctxMap := map[string]any{
		"user_id": "",
		"trigger": "",
		"params":  map[string]any{},
	}
	if rctx != nil {
		ctxMap["user_id"] = rctx.UserID
		ctxMap["trigger"] = rctx.Trigger
		if rctx.Params != nil {
			ctxMap["params"] = rctx.Params
		}
	}

	return map[string]any{
		"item":  item,
		"label": labels,
		"rctx":  ctxMap,
	}
}
