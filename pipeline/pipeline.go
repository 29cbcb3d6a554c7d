package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/dropfeed/core"
)

// Pipeline 把单个用户的排序逻辑拆成可组合的 Node 链：
// recall.candidate → filter → rank.score → rerank.diversity。
type Pipeline struct {
	Nodes []Node

	// OnNode 在每个 Node 处理完成后回调（可选），用于打点/日志。
	OnNode func(node Node, in, out int)
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		if p.OnNode != nil {
			p.OnNode(node, len(cur), len(next))
		}
		cur = next
	}
	return cur, nil
}
