// Package config 載入服務設定
//
// 載入順序：預設值 → YAML 檔 → .env → 環境變數。
// 後面的來源覆蓋前面的來源。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 儲存驅動
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config 整個應用的配置
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	NATS      NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Cache     CacheConfig     `yaml:"cache" envPrefix:"CACHE_"`
	Comments  CommentsConfig  `yaml:"comments" envPrefix:"COMMENTS_"`
	Reconcile ReconcileConfig `yaml:"reconcile" envPrefix:"RECONCILE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig HTTP 伺服器設定
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// StoreConfig 文件資料庫設定
type StoreConfig struct {
	Driver string      `yaml:"driver" env:"DRIVER"` // mongo 或 memory
	Mongo  MongoConfig `yaml:"mongo" envPrefix:"MONGO_"`
}

// MongoConfig MongoDB 連線設定
type MongoConfig struct {
	URI            string        `yaml:"uri" env:"URI"`
	Database       string        `yaml:"database" env:"DATABASE"`
	MaxPoolSize    uint64        `yaml:"max_pool_size" env:"MAX_POOL_SIZE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	AutoMigrate    bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// NATSConfig 轉檔佇列設定
type NATSConfig struct {
	URL      string        `yaml:"url" env:"URL"`
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Stream   string        `yaml:"stream" env:"STREAM"`
	Durable  string        `yaml:"durable" env:"DURABLE"`
	AckWait  time.Duration `yaml:"ack_wait" env:"ACK_WAIT"`
	MaxRetry int           `yaml:"max_retry" env:"MAX_RETRY"`
}

// CacheConfig 快取暖機與回寫設定
type CacheConfig struct {
	ProfileTTL      time.Duration `yaml:"profile_ttl" env:"PROFILE_TTL"`
	LikesFlushEvery int64         `yaml:"likes_flush_every" env:"LIKES_FLUSH_EVERY"`
	ViewsFlushEvery int64         `yaml:"views_flush_every" env:"VIEWS_FLUSH_EVERY"`
	RecentLimit     int64         `yaml:"recent_limit" env:"RECENT_LIMIT"`
}

// CommentsConfig 留言設定
type CommentsConfig struct {
	PageSize int `yaml:"page_size" env:"PAGE_SIZE"` // 內嵌 top_comments 的上限 N
}

// ReconcileConfig 計數器協調設定
type ReconcileConfig struct {
	LikeAttempts           int           `yaml:"like_attempts" env:"LIKE_ATTEMPTS"`
	CompensateMaxAttempts  uint64        `yaml:"compensate_max_attempts" env:"COMPENSATE_MAX_ATTEMPTS"`
	CompensateInitInterval time.Duration `yaml:"compensate_initial_interval" env:"COMPENSATE_INITIAL_INTERVAL"`
	CompensateMaxInterval  time.Duration `yaml:"compensate_max_interval" env:"COMPENSATE_MAX_INTERVAL"`
}

// LogConfig 日誌設定
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	Output     string `yaml:"output" env:"OUTPUT"`
	AddSource  bool   `yaml:"add_source" env:"ADD_SOURCE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// Default 返回預設設定
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     100,
			MinIdleConns: 10,
			MaxRetries:   3,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreDriverMongo,
			Mongo: MongoConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "video",
				MaxPoolSize:    100,
				ConnectTimeout: 10 * time.Second,
				AutoMigrate:    true,
			},
		},
		NATS: NATSConfig{
			URL:      "nats://localhost:4222",
			Enabled:  true,
			Stream:   "VIDEO",
			Durable:  "video-done-worker",
			AckWait:  30 * time.Second,
			MaxRetry: 5,
		},
		Cache: CacheConfig{
			ProfileTTL:      24 * time.Hour,
			LikesFlushEvery: 1000,
			ViewsFlushEvery: 1000,
			RecentLimit:     10,
		},
		Comments: CommentsConfig{
			PageSize: 20,
		},
		Reconcile: ReconcileConfig{
			LikeAttempts:           3,
			CompensateMaxAttempts:  8,
			CompensateInitInterval: 20 * time.Millisecond,
			CompensateMaxInterval:  time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

// Load 從 YAML 檔與環境變數載入設定
//
// path 為空時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// .env 不存在是正常情況（生產環境直接注入環境變數）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "VIDEO_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 檢查設定是否合法
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	switch c.Store.Driver {
	case StoreDriverMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			errs = append(errs, errors.New("store.mongo.uri and store.mongo.database are required"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Cache.LikesFlushEvery <= 0 || c.Cache.ViewsFlushEvery <= 0 {
		errs = append(errs, errors.New("cache flush frequencies must be positive"))
	}
	if c.Cache.RecentLimit <= 0 {
		errs = append(errs, errors.New("cache.recent_limit must be positive"))
	}
	if c.Comments.PageSize <= 0 {
		errs = append(errs, errors.New("comments.page_size must be positive"))
	}
	if c.Reconcile.LikeAttempts <= 0 {
		errs = append(errs, errors.New("reconcile.like_attempts must be positive"))
	}
	if c.Reconcile.CompensateMaxAttempts == 0 {
		errs = append(errs, errors.New("reconcile.compensate_max_attempts must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr 返回 HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
