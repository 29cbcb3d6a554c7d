package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/cache"
	"github.com/rushteam/dropfeed/config"
	"github.com/rushteam/dropfeed/config/builders"
	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/engine"
	"github.com/rushteam/dropfeed/feedback"
	"github.com/rushteam/dropfeed/pkg/logging"
	"github.com/rushteam/dropfeed/store"
	"github.com/rushteam/dropfeed/vector"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Log.Level = *c.logLevelFlag
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() zerolog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logging.New(logging.DefaultConfig())
	}
	return logging.New(cfg.Log)
}

// app 持有一个进程内装配好的引擎及其依赖。
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	sql        *store.SQLStore
	cacheStore core.CacheStore
	engine     *engine.Engine
	reader     *cache.FeedReader

	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// openApp 按配置装配存储、反馈服务、Pipeline 与引擎。
func (c *commandContext) openApp(ctx context.Context) (*app, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: c.logger()}

	sqlStore, err := store.OpenSQLStore(ctx, cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	a.sql = sqlStore
	a.closers = append(a.closers, sqlStore.Close)

	if err := a.openCache(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	lookup, err := a.openFeedback()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	factory := builders.NewFactory(builders.Deps{
		Candidates:  sqlStore,
		Feedback:    lookup,
		Similarity:  vector.NewLocalService(),
		Ranking:     cfg.Ranking,
		CallTimeout: cfg.Engine.CallTimeout,
	})
	p, err := cfg.Pipeline.BuildPipeline(factory)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	manager := cache.NewManager(a.cacheStore, cfg.Cache.Policy)
	manager.Timeout = cfg.Engine.CallTimeout

	a.engine = engine.New(sqlStore, manager, p,
		engine.WithConcurrency(cfg.Engine.Concurrency),
		engine.WithUserTimeout(cfg.Engine.UserTimeout),
		engine.WithCallTimeout(cfg.Engine.CallTimeout),
		engine.WithLogger(a.logger),
	)
	a.reader = &cache.FeedReader{
		Cache:      manager,
		Candidates: sqlStore,
		Lookback:   cfg.Ranking.Lookback,
		Limit:      cfg.Ranking.MaxItems,
	}
	return a, nil
}

func (a *app) openCache(ctx context.Context) error {
	switch a.cfg.Cache.Backend {
	case "redis":
		rc := a.cfg.Cache.Redis
		rs, err := store.NewRedisCacheStore(ctx, rc.Addr, rc.Password, rc.DB, rc.KeyPrefix)
		if err != nil {
			return fmt.Errorf("open redis cache: %w", err)
		}
		a.cacheStore = rs
		a.closers = append(a.closers, rs.Close)
	case "memory":
		a.cacheStore = store.NewMemoryCacheStore()
	default:
		a.cacheStore = a.sql
	}
	a.logger.Debug().Str("backend", a.cacheStore.Name()).Msg("cache store ready")
	return nil
}

func (a *app) openFeedback() (*feedback.Lookup, error) {
	fc := a.cfg.Feedback
	var provider core.FeedbackProvider
	switch fc.Provider {
	case "none":
		return nil, nil
	case "feast":
		fp, err := feedback.NewFeastProvider(fc.Feast.Host, fc.Feast.Port, fc.Feast.Project, fc.Feast.Feature)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, fp.Close)
		provider = fp
	default:
		provider = a.sql
	}

	if fc.Breaker.Enabled {
		provider = feedback.NewBreakerProvider(provider, feedback.BreakerConfig{
			MaxRequests:      fc.Breaker.MaxRequests,
			Interval:         fc.Breaker.Interval,
			Timeout:          fc.Breaker.Timeout,
			FailureThreshold: fc.Breaker.FailureThreshold,
		}, a.logger)
	}
	return &feedback.Lookup{
		Provider:    provider,
		Limit:       fc.Limit,
		Concurrency: fc.Concurrency,
		Timeout:     fc.Timeout,
	}, nil
}
