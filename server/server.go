// Package server 提供排序缓存引擎的 HTTP 接口：触发刷新、读取用户信息流、健康检查与指标。
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/dropfeed/cache"
	"github.com/rushteam/dropfeed/engine"
)

// Refresher 触发一次批处理，由 *engine.Engine 实现。
type Refresher interface {
	Run(ctx context.Context, t engine.Trigger) (*engine.Result, error)
}

// FeedSource 读取用户信息流，由 *cache.FeedReader 实现。
type FeedSource interface {
	Read(ctx context.Context, userID string) (*cache.Feed, error)
}

// HealthCheck 返回 nil 表示依赖可用。
type HealthCheck func(ctx context.Context) error

// Server 是 HTTP 服务。
type Server struct {
	refresher Refresher
	feeds     FeedSource
	health    HealthCheck
	logger    zerolog.Logger
	validate  *validator.Validate

	rateLimit  int
	rateWindow time.Duration

	// baseCtx 是异步刷新使用的上下文，随 ListenAndServe 的 ctx 取消
	baseCtx context.Context
}

// Option 是 Server 的配置选项。
type Option func(*Server)

// WithLogger 设置日志。
//
//nolint:gocritic // zerolog.Logger is passed by value by convention
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHealthCheck 设置 /healthz 使用的依赖检查。
func WithHealthCheck(check HealthCheck) Option {
	return func(s *Server) { s.health = check }
}

// WithRefreshRateLimit 限制每个客户端 IP 在 window 内的刷新请求数，limit 为 0 表示不限。
func WithRefreshRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = limit
		s.rateWindow = window
	}
}

// New 创建 HTTP 服务。
func New(refresher Refresher, feeds FeedSource, opts ...Option) *Server {
	s := &Server{
		refresher:  refresher,
		feeds:      feeds,
		logger:     zerolog.Nop(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		rateWindow: time.Minute,
		baseCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "server").Logger()
	return s
}

// Handler 返回路由：
//
//	POST /api/v1/feed/refresh     触发批处理
//	GET  /api/v1/feed/{userID}    读取用户信息流（无缓存时回退为最新内容）
//	GET  /healthz
//	GET  /metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/feed", func(r chi.Router) {
		r.With(s.refreshLimiter()).Post("/refresh", s.handleRefresh)
		r.Get("/{userID}", s.handleFeed)
	})
	return r
}

func (s *Server) refreshLimiter() func(http.Handler) http.Handler {
	if s.rateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.rateLimit,
		s.rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many refresh requests")
		}),
	)
}

// requestLogger 把带 request_id 的 logger 放入请求上下文，并记录请求耗时。
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With().Str("request_id", chimiddleware.GetReqID(r.Context())).Logger()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// ListenAndServe 启动服务，ctx 取消后优雅退出。
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info().Msg("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
