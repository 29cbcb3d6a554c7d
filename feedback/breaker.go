package feedback

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
)

// BreakerConfig 是熔断器配置。
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32        // half-open 状态允许的探测请求数
	Interval         time.Duration // closed 状态下计数清零周期
	Timeout          time.Duration // open 状态持续时间
	FailureThreshold uint32        // 连续失败多少次后熔断
}

// BreakerProvider 用熔断器包装 FeedbackProvider。
// 熔断打开后直接返回错误，调用方按 0 处理，避免把外部服务拖垮。
type BreakerProvider struct {
	next core.FeedbackProvider
	cb   *gobreaker.CircuitBreaker[float64]
}

// NewBreakerProvider 创建熔断包装。
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBreakerProvider(next core.FeedbackProvider, cfg BreakerConfig, logger zerolog.Logger) *BreakerProvider {
	if cfg.Name == "" {
		cfg.Name = "feedback:" + next.Name()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	threshold := cfg.FailureThreshold

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))

	return &BreakerProvider{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[float64](settings),
	}
}

func (p *BreakerProvider) Name() string { return p.next.Name() }

func (p *BreakerProvider) Affinity(ctx context.Context, q core.FeedbackQuery) (float64, error) {
	return p.cb.Execute(func() (float64, error) {
		return p.next.Affinity(ctx, q)
	})
}

// State 返回熔断器当前状态，用于健康检查。
func (p *BreakerProvider) State() string {
	return p.cb.State().String()
}

var _ core.FeedbackProvider = (*BreakerProvider)(nil)
