// Package dropfeed 是一个个性化排序与缓存引擎（Personalized Ranking & Cache Engine）。
//
// 设计要点：
// - Pipeline-first: 每个用户的排序通过 Node 串联（recall.candidate → filter → rank.score → rerank.diversity）
// - Labels-first: 打分分量与选择结果以 labels 透传，便于 explain 与观测
// - Cache-aware: 有效缓存跳过重新生成，写入失败时恢复上一代结果并延长有效期
//
// 入口见 cmd/dropfeed，批处理见 engine，缓存协议见 cache。
package dropfeed

import "github.com/rushteam/dropfeed/pipeline"

// 轻量 facade：便于直接 import "dropfeed" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindRank   = pipeline.KindRank
	KindReRank = pipeline.KindReRank
)
