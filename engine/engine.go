// Package engine 以批为单位驱动每个用户的排序与缓存刷新。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/dropfeed/cache"
	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/recall"
)

// TriggerKind 是批处理的触发来源。
type TriggerKind string

const (
	TriggerManual     TriggerKind = "manual"
	TriggerOnboarding TriggerKind = "onboarding_completed"
	TriggerScheduled  TriggerKind = "scheduled"
)

// Valid 判断触发来源是否合法。
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerManual, TriggerOnboarding, TriggerScheduled:
		return true
	}
	return false
}

// Trigger 是一次批处理请求。
//   - UserIDs 为空时处理 CandidateStore.ListUserIDs 返回的全部用户（有效缓存会被跳过）
//   - onboarding_completed 必须指定用户，且总是强制重新生成
type Trigger struct {
	Kind              TriggerKind `json:"trigger"`
	UserIDs           []string    `json:"user_ids,omitempty"`
	ForceRegeneration bool        `json:"force_regeneration,omitempty"`
}

// Result 是一次批处理的汇总。
type Result struct {
	RunID   string      `json:"run_id"`
	Trigger TriggerKind `json:"trigger"`

	// ProcessedUsers 完成处理（未失败、未被取消）的用户数
	ProcessedUsers      int `json:"processed_users"`
	CacheEntriesWritten int `json:"cache_entries_written"`
	CachePreserved      int `json:"cache_preserved"`
	CacheRegenerated    int `json:"cache_regenerated"`
	CacheRestored       int `json:"cache_restored"`
	FailedUsers         int `json:"failed_users"`
	// SkippedUsers 因取消或预算耗尽而未开始的用户数，其缓存保持不动
	SkippedUsers int `json:"skipped_users"`

	Duration time.Duration `json:"duration"`
}

// Engine 是排序缓存引擎（Personalized Ranking & Cache Engine）。
//
// 每个用户独立运行：读取画像、执行 Pipeline、交由 cache.Manager 持久化。
// 用户之间没有共享可变状态，批内以有界 worker pool 并发处理；
// 单个用户失败不影响同批其他用户。
type Engine struct {
	candidates core.CandidateStore
	cache      *cache.Manager
	pipeline   *pipeline.Pipeline
	profiles   *recall.ProfileLoader

	concurrency int
	userTimeout time.Duration
	callTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// Option 是 Engine 的配置选项。
type Option func(*Engine)

// WithConcurrency 设置批内并发用户数，默认 8。
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithUserTimeout 设置单个用户运行的总预算，默认 30 秒。
func WithUserTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.userTimeout = d
		}
	}
}

// WithCallTimeout 设置单次存储调用超时，默认 core.DefaultCallTimeout。
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithLogger 设置日志。
//
//nolint:gocritic // zerolog.Logger is passed by value by convention
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock 注入时钟，测试使用。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithProfileLoader 替换默认的画像加载器。
func WithProfileLoader(l *recall.ProfileLoader) Option {
	return func(e *Engine) {
		if l != nil {
			e.profiles = l
		}
	}
}

// New 创建引擎。
func New(candidates core.CandidateStore, cacheManager *cache.Manager, p *pipeline.Pipeline, opts ...Option) *Engine {
	e := &Engine{
		candidates:  candidates,
		cache:       cacheManager,
		pipeline:    p,
		concurrency: 8,
		userTimeout: 30 * time.Second,
		callTimeout: core.DefaultCallTimeout,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.profiles == nil {
		e.profiles = &recall.ProfileLoader{
			Store:    candidates,
			Resolver: &recall.TopicResolver{Store: candidates, Timeout: e.callTimeout},
			Timeout:  e.callTimeout,
		}
	}
	e.logger = e.logger.With().Str("component", "engine").Logger()
	return e
}

// Cache 返回引擎使用的缓存管理器。
func (e *Engine) Cache() *cache.Manager { return e.cache }

// Candidates 返回引擎使用的候选存储。
func (e *Engine) Candidates() core.CandidateStore { return e.candidates }

// ErrInvalidTrigger 表示触发请求不合法。
var ErrInvalidTrigger = core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "engine: invalid trigger")

// Run 执行一次批处理。
//
// 只有批级失败（触发请求非法、无法列出用户）返回 error，此时 ProcessedUsers 为 0；
// 单用户的失败计入 FailedUsers。ctx 取消后尚未开始的用户保持不动，计入 SkippedUsers。
func (e *Engine) Run(ctx context.Context, t Trigger) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Trigger: t.Kind}
	logger := e.logger.With().Str("run_id", res.RunID).Str("trigger", string(t.Kind)).Logger()

	users, force, err := e.resolveUsers(ctx, t)
	if err != nil {
		metrics.BatchRuns.WithLabelValues(string(t.Kind), "failed").Inc()
		logger.Error().Err(err).Msg("batch run failed")
		res.Duration = time.Since(start)
		return res, err
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(e.concurrency)

	record := func(out userOutcome) {
		mu.Lock()
		defer mu.Unlock()
		switch out.outcome {
		case outcomeSkipped:
			res.SkippedUsers++
			return
		case cache.OutcomeFailed:
			res.FailedUsers++
			return
		case cache.OutcomePreserved:
			res.CachePreserved++
		case cache.OutcomeRegenerated, cache.OutcomeEmpty:
			res.CacheRegenerated++
		case cache.OutcomeRestored:
			res.CacheRestored++
		}
		res.ProcessedUsers++
		res.CacheEntriesWritten += out.written
	}

	for i, userID := range users {
		if ctx.Err() != nil {
			mu.Lock()
			res.SkippedUsers += len(users) - i
			mu.Unlock()
			break
		}
		eg.Go(func() error {
			record(e.runUser(ctx, logger, res.RunID, t.Kind, userID, force))
			return nil
		})
	}
	_ = eg.Wait()

	res.Duration = time.Since(start)
	status := "ok"
	if ctx.Err() != nil {
		status = "canceled"
	}
	metrics.BatchRuns.WithLabelValues(string(t.Kind), status).Inc()
	logger.Info().
		Int("users", len(users)).
		Int("processed", res.ProcessedUsers).
		Int("regenerated", res.CacheRegenerated).
		Int("preserved", res.CachePreserved).
		Int("restored", res.CacheRestored).
		Int("failed", res.FailedUsers).
		Int("skipped", res.SkippedUsers).
		Int("entries_written", res.CacheEntriesWritten).
		Dur("duration", res.Duration).
		Msg("batch run finished")
	return res, nil
}

func (e *Engine) resolveUsers(ctx context.Context, t Trigger) ([]string, bool, error) {
	if !t.Kind.Valid() {
		return nil, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, t.Kind)
	}
	force := t.ForceRegeneration
	if t.Kind == TriggerOnboarding {
		if len(t.UserIDs) == 0 {
			return nil, false, fmt.Errorf("%w: %s requires user ids", ErrInvalidTrigger, t.Kind)
		}
		force = true
	}

	if len(t.UserIDs) > 0 {
		return dedupe(t.UserIDs), force, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	users, err := e.candidates.ListUserIDs(callCtx)
	if err != nil {
		return nil, false, fmt.Errorf("list users: %w", err)
	}
	return users, force, nil
}

const outcomeSkipped cache.Outcome = "skipped"

type userOutcome struct {
	outcome cache.Outcome
	written int
}

func (e *Engine) runUser(
	ctx context.Context,
	batchLogger zerolog.Logger,
	runID string,
	trigger TriggerKind,
	userID string,
	force bool,
) userOutcome {
	if ctx.Err() != nil {
		metrics.UserOutcomes.WithLabelValues(string(outcomeSkipped)).Inc()
		return userOutcome{outcome: outcomeSkipped}
	}

	start := time.Now()
	logger := batchLogger.With().Str("user_id", userID).Logger()
	userCtx, cancel := context.WithTimeout(logger.WithContext(ctx), e.userTimeout)
	defer cancel()

	rctx := &core.RecommendContext{
		UserID:  userID,
		RunID:   runID,
		Trigger: string(trigger),
		Now:     e.now(),
		Params:  map[string]any{"force": force},
	}
	generate := func(ctx context.Context) ([]*core.Item, error) {
		if err := e.profiles.Load(ctx, rctx); err != nil {
			return nil, err
		}
		return e.pipeline.Run(ctx, rctx, nil)
	}

	res, err := e.cache.Refresh(userCtx, userID, force, generate)
	metrics.UserRunDuration.Observe(time.Since(start).Seconds())
	metrics.UserOutcomes.WithLabelValues(string(res.Outcome)).Inc()

	switch {
	case err == nil:
		logger.Debug().
			Str("state", string(res.State)).
			Str("outcome", string(res.Outcome)).
			Int("written", res.Written).
			Msg("user refreshed")
	case core.IsCacheWriteFailure(err) && res.Outcome == cache.OutcomeRestored:
		logger.Warn().Err(err).Int("restored", res.Restored).Msg("cache write failed, previous ranking restored")
	case core.IsCandidateFetchFailure(err):
		logger.Warn().Err(err).Msg("candidate fetch failed, user skipped")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		logger.Warn().Err(err).Msg("user run timed out")
	default:
		logger.Warn().Err(err).Str("outcome", string(res.Outcome)).Msg("user run failed")
	}
	return userOutcome{outcome: res.Outcome, written: res.Written}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
