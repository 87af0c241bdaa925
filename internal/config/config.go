// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "WAINGEST"

const (
	QueueDriverRedis = "redis"
	QueueDriverAMQP  = "amqp"
	QueueDriverNone  = "none"

	StorageDriverHTTP  = "http"
	StorageDriverLocal = "local"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Provider       ProviderConfig       `mapstructure:"provider"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Functions      FunctionsConfig      `mapstructure:"functions"`
	Media          MediaConfig          `mapstructure:"media"`
	Agent          AgentConfig          `mapstructure:"agent"`
	Sweeper        SweeperConfig        `mapstructure:"sweeper"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Middleware     MiddlewareConfig     `mapstructure:"middleware"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     int           `mapstructure:"read_timeout" validate:"min=1"`
	WriteTimeout    int           `mapstructure:"write_timeout" validate:"min=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"min=1"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host" validate:"required"`
	Port           int    `mapstructure:"port" validate:"min=1,max=65535"`
	User           string `mapstructure:"user" validate:"required"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname" validate:"required"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	DedupTTL time.Duration `mapstructure:"dedup_ttl"`
}

type QueueConfig struct {
	Driver        string        `mapstructure:"driver" validate:"oneof=redis amqp none"`
	Stream        string        `mapstructure:"stream"`
	Group         string        `mapstructure:"group"`
	Consumer      string        `mapstructure:"consumer"`
	DLQStream     string        `mapstructure:"dlq_stream"`
	AMQPURL       string        `mapstructure:"amqp_url" validate:"required_if=Driver amqp"`
	Exchange      string        `mapstructure:"exchange"`
	AMQPQueue     string        `mapstructure:"amqp_queue"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"min=1"`
	PushTimeout   time.Duration `mapstructure:"push_timeout"`
	BatchSize     int64         `mapstructure:"batch_size"`
	Block         time.Duration `mapstructure:"block"`
	Workers       int           `mapstructure:"workers" validate:"min=1"`
	TaskTimeout   time.Duration `mapstructure:"task_timeout"`
	RequeueDelay  time.Duration `mapstructure:"requeue_delay"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
	PrefetchCount int           `mapstructure:"prefetch_count"`
	// ClaimIdle is how long a stream entry may sit unacked under another consumer
	// before this one claims it. Zero disables reclaiming.
	ClaimIdle     time.Duration `mapstructure:"claim_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Timeout int    `mapstructure:"timeout" validate:"min=1"`
}

type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=http local"`
	BaseURL       string `mapstructure:"base_url" validate:"required_if=Driver http"`
	Bucket        string `mapstructure:"bucket" validate:"required"`
	ServiceKey    string `mapstructure:"service_key"`
	LocalDir      string `mapstructure:"local_dir" validate:"required_if=Driver local"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Timeout       int    `mapstructure:"timeout" validate:"min=1"`
}

type FunctionsConfig struct {
	BaseURL      string `mapstructure:"base_url" validate:"omitempty,url"`
	ServiceToken string `mapstructure:"service_token"`
	Timeout      int    `mapstructure:"timeout" validate:"min=1"`
}

type MediaConfig struct {
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxBytes     int64         `mapstructure:"max_bytes" validate:"min=1"`
}

type AgentConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size" validate:"min=1"`
}

type CircuitBreakerConfig struct {
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"`
	Timeout          int     `mapstructure:"timeout"`
	FailureRatio     float64 `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	ConsecutiveFails uint32  `mapstructure:"consecutive_fails"`
}

type MiddlewareConfig struct {
	RateLimit      int      `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	EnableCORS     bool     `mapstructure:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RequestTimeout int      `mapstructure:"request_timeout" validate:"min=1"`
}

type SecurityConfig struct {
	InternalToken string `mapstructure:"internal_token"`
}

// LoadConfig reads configPath (optional), .env and WAINGEST_* environment variables.
func LoadConfig(configPath string) (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Queue.Consumer == "" {
		config.Queue.Consumer = DefaultConsumerName()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// A live consumer must never lose its own in-flight entries to a reclaim.
	if c.Queue.ClaimIdle > 0 && c.Queue.TaskTimeout > 0 && c.Queue.ClaimIdle <= c.Queue.TaskTimeout {
		return fmt.Errorf("invalid config: queue.claim_idle (%s) must exceed queue.task_timeout (%s)",
			c.Queue.ClaimIdle, c.Queue.TaskTimeout)
	}
	return nil
}

// DefaultConsumerName gives every replica its own stream consumer: the hostname,
// or the process id when the hostname is unavailable.
func DefaultConsumerName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("worker-%d", os.Getpid())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 5<<20)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "wa_ingest")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("database.migrations_path", "./migrations")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dedup_ttl", 24*time.Hour)

	v.SetDefault("queue.driver", QueueDriverRedis)
	v.SetDefault("queue.stream", "wa_ingest_tasks")
	v.SetDefault("queue.group", "wa_ingest_workers")
	v.SetDefault("queue.consumer", "")
	v.SetDefault("queue.dlq_stream", "wa_ingest_tasks_dlq")
	v.SetDefault("queue.amqp_url", "")
	v.SetDefault("queue.exchange", "wa_ingest")
	v.SetDefault("queue.amqp_queue", "wa_ingest_tasks")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.push_timeout", 2*time.Second)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.block", 5*time.Second)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.task_timeout", 2*time.Minute)
	v.SetDefault("queue.requeue_delay", time.Second)
	v.SetDefault("queue.drain_timeout", 30*time.Second)
	v.SetDefault("queue.prefetch_count", 10)
	v.SetDefault("queue.claim_idle", 5*time.Minute)
	v.SetDefault("queue.claim_interval", time.Minute)

	v.SetDefault("provider.base_url", "https://api.uazapi.com")
	v.SetDefault("provider.timeout", 30)

	v.SetDefault("storage.driver", StorageDriverLocal)
	v.SetDefault("storage.base_url", "")
	v.SetDefault("storage.bucket", "chat-media")
	v.SetDefault("storage.service_key", "")
	v.SetDefault("storage.local_dir", "./data/media")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.timeout", 60)

	v.SetDefault("functions.base_url", "")
	v.SetDefault("functions.service_token", "")
	v.SetDefault("functions.timeout", 60)

	v.SetDefault("media.retry_backoff", time.Second)
	v.SetDefault("media.max_bytes", 64<<20)

	v.SetDefault("agent.enabled", false)
	v.SetDefault("agent.max_delay", 30*time.Second)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", 5*time.Minute)
	v.SetDefault("sweeper.stale_after", 30*time.Minute)
	v.SetDefault("sweeper.batch_size", 100)

	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", 60)
	v.SetDefault("circuit_breaker.timeout", 60)
	v.SetDefault("circuit_breaker.failure_ratio", 0.6)
	v.SetDefault("circuit_breaker.consecutive_fails", 5)

	v.SetDefault("middleware.rate_limit", 100)
	v.SetDefault("middleware.rate_limit_burst", 1000)
	v.SetDefault("middleware.enable_cors", true)
	v.SetDefault("middleware.allowed_origins", []string{"*"})
	v.SetDefault("middleware.request_timeout", 30)

	v.SetDefault("security.internal_token", "")
}

// GetDSN returns PostgreSQL connection string.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// GetURL returns the database as a postgres:// URL, the form golang-migrate expects.
func (d *DatabaseConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Addr returns host:port.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
