package config

import (
	"errors"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

var errRedisAddrRequired = errors.New("redis.addr is required when store.backend is redis")

// Key is a configuration key path used with Viper.
type Key string

const (
	ServerHost Key = "server.host"
	ServerPort Key = "server.port"

	StoreBackend Key = "store.backend"

	RedisAddr     Key = "redis.addr"
	RedisPassword Key = "redis.password"
	RedisDB       Key = "redis.db"

	ManagerDefaultMaxRetries Key = "manager.default_max_retries"
	ManagerRetryDelayBase    Key = "manager.retry_delay_base"

	WorkerID                 Key = "worker.id"
	WorkerBatchSize          Key = "worker.batch_size"
	WorkerMaximumConcurrency Key = "worker.maximum_concurrency"
	WorkerPollingInterval    Key = "worker.polling_interval"
	WorkerMaximumQueueSize   Key = "worker.maximum_queue_size"
	WorkerChannelSendTimeout Key = "worker.channel_send_timeout"
	WorkerShutdownTimeout    Key = "worker.shutdown_timeout"
	WorkerErrorDelay         Key = "worker.error_delay"

	RecoveryEnabled       Key = "recovery.enabled"
	RecoveryJobTimeout    Key = "recovery.job_timeout"
	RecoveryCheckInterval Key = "recovery.check_interval"
	RecoveryMaxRetries    Key = "recovery.max_retries"
)

var defaultValues = map[Key]any{
	ServerHost: "0.0.0.0",
	ServerPort: 8080,

	StoreBackend: StoreBackendMemory,

	RedisDB: 0,

	ManagerDefaultMaxRetries: 3,
	ManagerRetryDelayBase:    2 * time.Second,

	// WorkerID has no default on purpose: an unset id mints a fresh uuid
	// per process so two workers never share an identity by accident.
	WorkerBatchSize:          10,
	WorkerMaximumConcurrency: runtime.NumCPU(),
	WorkerPollingInterval:    time.Second,
	WorkerMaximumQueueSize:   50,
	WorkerChannelSendTimeout: 5 * time.Second,
	WorkerShutdownTimeout:    30 * time.Second,
	WorkerErrorDelay:         5 * time.Second,

	RecoveryEnabled:       true,
	RecoveryJobTimeout:    30 * time.Minute,
	RecoveryCheckInterval: time.Minute,
	RecoveryMaxRetries:    3,
}

// SetDefaults sets all viper defaults for configuration. Called before
// viper.Unmarshal() so defaults are available to Load.
func SetDefaults() {
	for k, v := range defaultValues {
		viper.SetDefault(string(k), v)
	}
}
