package config

import (
	"time"
)

// Store backends selectable via store.backend.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// App is the root configuration for the engine process.
type App struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Manager  ManagerConfig  `mapstructure:"manager"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
}

func (a App) Validate() error {
	if err := validateConfig(a); err != nil {
		return err
	}
	if a.Store.Backend == StoreBackendRedis && a.Redis.Addr == "" {
		return errRedisAddrRequired
	}
	return nil
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required" flag:"host" toml:"host"`
	Port uint   `mapstructure:"port" validate:"required,min=1,max=65535" flag:"port" toml:"port"`
}

func (s ServerConfig) Validate() error {
	return validateConfig(s)
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=memory redis" flag:"store-backend" toml:"backend"`
}

func (s StoreConfig) Validate() error {
	return validateConfig(s)
}

// RedisConfig contains the redis connection settings. Only consulted when
// store.backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port" flag:"redis-addr" toml:"addr"`
	Password string `mapstructure:"password" flag:"redis-password" toml:"password"`
	DB       int    `mapstructure:"db" validate:"min=0" flag:"redis-db" toml:"db"`
}

func (r RedisConfig) Validate() error {
	return validateConfig(r)
}

// ManagerConfig tunes submission defaults and the retry schedule.
type ManagerConfig struct {
	DefaultMaxRetries int           `mapstructure:"default_max_retries" validate:"min=0" flag:"default-max-retries" toml:"default_max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base" validate:"min=0" flag:"retry-delay-base" toml:"retry_delay_base"`
}

func (m ManagerConfig) Validate() error {
	return validateConfig(m)
}

// WorkerConfig tunes the claim-execute loop. An empty ID mints a fresh worker
// identity per process.
type WorkerConfig struct {
	ID                 string        `mapstructure:"id" validate:"omitempty,uuid" flag:"worker-id" toml:"id"`
	BatchSize          int           `mapstructure:"batch_size" validate:"min=0" flag:"batch-size" toml:"batch_size"`
	MaximumConcurrency int           `mapstructure:"maximum_concurrency" validate:"min=0" flag:"concurrency" toml:"maximum_concurrency"`
	PollingInterval    time.Duration `mapstructure:"polling_interval" validate:"min=0" flag:"polling-interval" toml:"polling_interval"`
	MaximumQueueSize   int           `mapstructure:"maximum_queue_size" validate:"min=0" flag:"queue-size" toml:"maximum_queue_size"`
	ChannelSendTimeout time.Duration `mapstructure:"channel_send_timeout" validate:"min=0" flag:"send-timeout" toml:"channel_send_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" validate:"min=0" flag:"shutdown-timeout" toml:"shutdown_timeout"`
	ErrorDelay         time.Duration `mapstructure:"error_delay" validate:"min=0" flag:"error-delay" toml:"error_delay"`
}

func (w WorkerConfig) Validate() error {
	return validateConfig(w)
}

// RecoveryConfig tunes the stuck-job recovery loop.
type RecoveryConfig struct {
	Enabled       bool          `mapstructure:"enabled" flag:"recovery" toml:"enabled"`
	JobTimeout    time.Duration `mapstructure:"job_timeout" validate:"min=0" flag:"job-timeout" toml:"job_timeout"`
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"min=0" flag:"recovery-interval" toml:"check_interval"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=0" flag:"recovery-max-retries" toml:"max_retries"`
}

func (r RecoveryConfig) Validate() error {
	return validateConfig(r)
}
