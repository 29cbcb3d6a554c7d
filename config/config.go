// Package config 定义 dropfeed 进程的 YAML 配置以及 Pipeline Node 注册表。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/dropfeed/cache"
	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/pipeline"
	"github.com/rushteam/dropfeed/pkg/logging"
	"github.com/rushteam/dropfeed/rank"
)

// Config 是进程级配置，对应一份 YAML 文件。
type Config struct {
	Log       logging.Config  `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Engine    EngineConfig    `yaml:"engine"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pipeline  pipeline.Config `yaml:"pipeline"`

	// PipelineFile 非空时从独立 YAML 文件加载 Pipeline，覆盖 pipeline 段；相对路径基于配置文件所在目录
	PipelineFile string `yaml:"pipeline_file"`
}

// StoreConfig 是候选存储（SQLite）配置。
type StoreConfig struct {
	// Path 数据库文件路径，":memory:" 表示内存库
	Path string `yaml:"path" validate:"required"`
}

// CacheConfig 是排序缓存配置。
type CacheConfig struct {
	// Backend: sqlite（与候选同库）/ redis / memory
	Backend string       `yaml:"backend" validate:"oneof=sqlite redis memory"`
	Policy  cache.Policy `yaml:",inline"`
	Redis   RedisConfig  `yaml:"redis"`
}

// RedisConfig 是 Redis 缓存后端配置。
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RankingConfig 是打分与选择的默认参数，Pipeline 中的 node config 可覆盖。
type RankingConfig struct {
	Weights        rank.Weights  `yaml:"weights"`
	Lookback       time.Duration `yaml:"lookback" validate:"gte=0"`
	CandidateLimit int           `yaml:"candidate_limit" validate:"gte=0"`
	HalfLifeHours  float64       `yaml:"half_life_hours" validate:"gte=0"`
	FreshHours     float64       `yaml:"fresh_hours" validate:"gte=0"`
	DiversityQuota int           `yaml:"diversity_quota" validate:"gte=0"`
	MaxItems       int           `yaml:"max_items" validate:"gte=0"`
	MaxPerSource   int           `yaml:"max_per_source" validate:"gte=0"`
	// SimilarityTimeout 单次相似度计算超时
	SimilarityTimeout time.Duration `yaml:"similarity_timeout" validate:"gte=0"`
}

// FeedbackConfig 是反馈亲和度来源配置。
type FeedbackConfig struct {
	// Provider: sql（feedback_affinity 表）/ feast / none
	Provider    string        `yaml:"provider" validate:"oneof=sql feast none"`
	Limit       int           `yaml:"limit" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	Feast       FeastConfig   `yaml:"feast"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// FeastConfig 是 Feast Feature Server 配置。
type FeastConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" validate:"gte=0,lte=65535"`
	Project string `yaml:"project"`
	Feature string `yaml:"feature"`
}

// BreakerConfig 是反馈服务熔断配置。
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
}

// EngineConfig 是批处理引擎配置。
type EngineConfig struct {
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
	UserTimeout time.Duration `yaml:"user_timeout" validate:"gte=0"`
	CallTimeout time.Duration `yaml:"call_timeout" validate:"gte=0"`
}

// ServerConfig 是 HTTP 服务配置。
type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// RefreshRateLimit 每个客户端 IP 在 RefreshRateWindow 内允许的刷新请求数，0 表示不限
	RefreshRateLimit  int           `yaml:"refresh_rate_limit" validate:"gte=0"`
	RefreshRateWindow time.Duration `yaml:"refresh_rate_window"`
}

// SchedulerConfig 是定时刷新配置。
type SchedulerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Force 为 true 时定时任务忽略缓存有效性
	Force bool `yaml:"force"`
}

// Default 返回默认配置。
func Default() Config {
	return Config{
		Log:   logging.DefaultConfig(),
		Store: StoreConfig{Path: "dropfeed.db"},
		Cache: CacheConfig{
			Backend: "sqlite",
			Policy:  cache.DefaultPolicy(),
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "dropfeed:feed:"},
		},
		Ranking: RankingConfig{
			Weights:           rank.DefaultWeights(),
			Lookback:          core.DefaultLookback,
			CandidateLimit:    core.DefaultCandidateLimit,
			HalfLifeHours:     core.DefaultHalfLifeHours,
			FreshHours:        core.DefaultFreshHours,
			DiversityQuota:    rank.DefaultDiversityQuota,
			MaxItems:          core.DefaultMaxItems,
			MaxPerSource:      core.DefaultMaxPerSource,
			SimilarityTimeout: core.DefaultCallTimeout,
		},
		Feedback: FeedbackConfig{
			Provider:    "sql",
			Limit:       core.DefaultFeedbackLimit,
			Concurrency: 10,
			Timeout:     time.Second,
			Feast:       FeastConfig{Port: 6565},
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Engine: EngineConfig{
			Concurrency: 8,
			UserTimeout: 30 * time.Second,
			CallTimeout: core.DefaultCallTimeout,
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      60 * time.Second,
			RefreshRateLimit:  10,
			RefreshRateWindow: time.Minute,
		},
		Scheduler: SchedulerConfig{Interval: time.Hour},
		Pipeline:  pipeline.DefaultConfig(),
	}
}

// Load 读取 YAML 配置文件；path 为空时返回默认配置。
// 文件中未出现的字段保留默认值。
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.PipelineFile != "" {
		pipelinePath := cfg.PipelineFile
		if !filepath.IsAbs(pipelinePath) {
			pipelinePath = filepath.Join(filepath.Dir(path), pipelinePath)
		}
		pc, err := pipeline.LoadFromYAML(pipelinePath)
		if err != nil {
			return nil, fmt.Errorf("load pipeline %s: %w", pipelinePath, err)
		}
		cfg.Pipeline = *pc
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 校验字段取值与跨字段约束，并检查 Pipeline 中的 node 类型均已注册。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("invalid config: cache.redis.addr is required for the redis backend")
	}
	if c.Feedback.Provider == "feast" && c.Feedback.Feast.Project == "" {
		return errors.New("invalid config: feedback.feast.project is required for the feast provider")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return errors.New("invalid config: scheduler.interval must be positive")
	}
	return ValidatePipelineConfig(&c.Pipeline)
}
