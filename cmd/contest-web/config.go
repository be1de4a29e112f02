package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"shodh/internal/backend"
	"shodh/internal/common/cache"
	"shodh/internal/common/db"
	"shodh/internal/common/http/middleware"
	"shodh/internal/common/mq"
	"shodh/internal/contest/joinstore"
	"shodh/internal/push"
	"shodh/pkg/utils/logger"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:3000"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultBackendURL      = "http://localhost:8080"
	defaultMaxCodeBytes    = 64 << 10
	defaultRateWindow      = time.Minute

	consumerGroupPrefix = "contest-web-"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// FallbackConfig selects mock or error behavior per backend-backed route group.
type FallbackConfig struct {
	Submissions backend.FallbackMode `yaml:"submissions"`
	Leaderboard backend.FallbackMode `yaml:"leaderboard"`
}

// BackendConfig holds the judging backend settings.
type BackendConfig struct {
	backend.Config `yaml:",inline"`
	Fallback       FallbackConfig `yaml:"fallback"`
}

// SubmissionConfig holds submission validation and rate limits.
type SubmissionConfig struct {
	MaxCodeBytes int                        `yaml:"maxCodeBytes"`
	RateLimit    middleware.RateLimitPolicy `yaml:"rateLimit"`
}

// CatalogConfig points at an optional fixtures file. Empty uses the embedded one.
type CatalogConfig struct {
	FixturesPath string `yaml:"fixturesPath"`
}

// PushConfig holds the websocket hub and update source settings.
type PushConfig struct {
	Hub    push.HubConfig    `yaml:"hub"`
	Source push.SourceConfig `yaml:"source"`
}

// AppConfig holds the contest-web configuration.
type AppConfig struct {
	Server ServerConfig           `yaml:"server"`
	Logger logger.Config          `yaml:"logger"`
	CORS   middleware.CORSConfig  `yaml:"cors"`
	Trace  middleware.TraceConfig `yaml:"trace"`

	Backend    BackendConfig    `yaml:"backend"`
	Submission SubmissionConfig `yaml:"submission"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	JoinStore  joinstore.Config `yaml:"joinStore"`
	Push       PushConfig       `yaml:"push"`

	Redis cache.RedisConfig `yaml:"redis"`
	MySQL db.MySQLConfig    `yaml:"mysql"`
	Kafka mq.KafkaConfig    `yaml:"kafka"`
}

func (c *AppConfig) needsRedis() bool {
	return c.JoinStore.Type == joinstore.TypeRedis ||
		c.Push.Source.Type == push.SourceRedis ||
		c.Submission.RateLimit.Enabled
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string, lookupEnv func(string) (string, bool)) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg, lookupEnv)
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets deployment environments override the file.
func applyEnv(cfg *AppConfig, lookupEnv func(string) (string, bool)) {
	if lookupEnv == nil {
		return
	}
	set := func(name string, dst *string) {
		if v, ok := lookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("BACKEND_URL", &cfg.Backend.BaseURL)
	set("JOIN_STORE", &cfg.JoinStore.Type)
	set("JOIN_COOKIE_SECRET", &cfg.JoinStore.Cookie.Secret)
	set("REDIS_ADDR", &cfg.Redis.Addr)
	set("MYSQL_DSN", &cfg.MySQL.DSN)
	set("PUSH_SOURCE", &cfg.Push.Source.Type)
	if v, ok := lookupEnv("KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
}

func normalize(cfg *AppConfig) error {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaultBackendURL
	}
	var err error
	if cfg.Backend.Fallback.Submissions, err = backend.ParseFallbackMode(string(cfg.Backend.Fallback.Submissions)); err != nil {
		return fmt.Errorf("backend.fallback.submissions: %w", err)
	}
	if cfg.Backend.Fallback.Leaderboard, err = backend.ParseFallbackMode(string(cfg.Backend.Fallback.Leaderboard)); err != nil {
		return fmt.Errorf("backend.fallback.leaderboard: %w", err)
	}
	if cfg.Submission.MaxCodeBytes <= 0 {
		cfg.Submission.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.Submission.RateLimit.Window <= 0 {
		cfg.Submission.RateLimit.Window = defaultRateWindow
	}

	if err := cfg.JoinStore.Normalize(); err != nil {
		return err
	}
	if err := cfg.Push.Source.Normalize(); err != nil {
		return err
	}
	if cfg.Push.Source.ConsumerGroup == "" {
		// Every instance reads the whole topic, so each gets its own group.
		cfg.Push.Source.ConsumerGroup = consumerGroupPrefix + uuid.NewString()
	}
	if len(cfg.Push.Hub.AllowedOrigins) == 0 && cfg.CORS.Enabled {
		cfg.Push.Hub.AllowedOrigins = cfg.CORS.AllowedOrigins
	}

	if cfg.needsRedis() {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.JoinStore.Type == joinstore.TypeMySQL && cfg.MySQL.DSN == "" {
		return fmt.Errorf("mysql dsn is required")
	}
	if cfg.Push.Source.Type == push.SourceKafka && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}
