package core

import "context"

// SimilarityService 是向量相似度计算的领域接口（外部协作方）。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（vector）实现
//   - 返回原始余弦相似度 [-1,1]；换算为 [0,1] 由打分侧负责
//
// 实现：
//   - vector.LocalService：进程内计算
//   - 其他向量数据库（pgvector 等）也可以实现此接口，返回 1 - cosineDistance
type SimilarityService interface {
	Similarity(ctx context.Context, a, b []float64) (float64, error)
}

// MetricType 距离度量类型
type MetricType string

const (
	MetricCosine       MetricType = "cosine"
	MetricInnerProduct MetricType = "inner_product"
)
