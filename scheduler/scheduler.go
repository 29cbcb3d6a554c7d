// Package scheduler 按固定间隔发起 scheduled 批处理。
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/engine"
)

// Runner 执行一次批处理，由 *engine.Engine 实现。
type Runner interface {
	Run(ctx context.Context, t engine.Trigger) (*engine.Result, error)
}

// Scheduler 每隔 Interval 发起一次 scheduled 触发（处理全部用户，有效缓存跳过）。
// 上一次运行未结束时不会重叠启动，错过的 tick 直接丢弃。
type Scheduler struct {
	Runner   Runner
	Interval time.Duration
	// Force 为 true 时忽略缓存有效性
	Force bool
	// RunOnStart 为 true 时启动后立即运行一次
	RunOnStart bool

	Logger zerolog.Logger
}

// Start 阻塞运行直到 ctx 取消，返回 ctx.Err()。
func (s *Scheduler) Start(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logger := s.Logger.With().Str("component", "scheduler").Logger()
	logger.Info().Dur("interval", interval).Msg("scheduler started")

	if s.RunOnStart {
		s.tick(ctx, &logger)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx, &logger)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, logger *zerolog.Logger) {
	if ctx.Err() != nil {
		return
	}
	res, err := s.Runner.Run(logger.WithContext(ctx), engine.Trigger{
		Kind:              engine.TriggerScheduled,
		ForceRegeneration: s.Force,
	})
	if err != nil {
		logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	logger.Info().
		Str("run_id", res.RunID).
		Int("processed", res.ProcessedUsers).
		Int("failed", res.FailedUsers).
		Msg("scheduled run finished")
}
