package vector

import (
	"context"
	"math"

	"github.com/rushteam/dropfeed/core"
)

// ErrDimensionMismatch 表示两个向量维度不一致
var ErrDimensionMismatch = core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "vector dimension mismatch")

// ErrZeroVector 表示向量范数为 0，余弦相似度无定义
var ErrZeroVector = core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "zero-norm vector")

// Cosine 计算余弦相似度，取值 [-1,1]。
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, core.NewDomainError(core.ModuleVector, core.ErrorCodeInvalidInput, "non-finite similarity")
	}
	return sim, nil
}

// InnerProduct 计算内积
func InnerProduct(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// SimilarityToUnit 把余弦距离换算为 [0,1] 的相似度：max(0, min(1, 1 - distance))。
// distance = 1 - cosine，因此等价于把 cosine 截断到 [0,1]。
func SimilarityToUnit(cosine float64) float64 {
	distance := 1 - cosine
	return math.Max(0, math.Min(1, 1-distance))
}

// LocalService 是进程内的相似度服务，实现 core.SimilarityService。
type LocalService struct {
	Metric core.MetricType
}

func NewLocalService() *LocalService {
	return &LocalService{Metric: core.MetricCosine}
}

func (s *LocalService) Similarity(ctx context.Context, a, b []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.Metric == core.MetricInnerProduct {
		return InnerProduct(a, b)
	}
	return Cosine(a, b)
}

var _ core.SimilarityService = (*LocalService)(nil)
