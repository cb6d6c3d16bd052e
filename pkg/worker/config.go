package worker

import (
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollingInterval   = 1 * time.Second
	defaultMaximumQueueSize  = 50
	defaultChannelSendWait   = 5 * time.Second
	defaultShutdownTimeout   = 30 * time.Second
	defaultErrorDelay        = 5 * time.Second
	defaultJobTimeout        = 30 * time.Minute
	defaultRecoveryInterval  = 1 * time.Minute
	defaultRecoveryRetries   = 3
	// maxNoJobDelay caps the idle back-off so a drained queue is noticed
	// within a bounded window.
	maxNoJobDelay = 30 * time.Second
)

// Config holds all parameters for a worker process.
type Config struct {
	// ID identifies this worker across the shared store. Claimed jobs
	// carry it until finalization or recovery.
	ID uuid.UUID
	// MaximumConcurrency bounds how many handlers run at once.
	MaximumConcurrency int
	// PollingInterval is the producer's base sleep between claims.
	PollingInterval time.Duration
	// MaximumQueueSize is the capacity of the producer-consumer channel.
	MaximumQueueSize int
	// ChannelSendTimeout bounds how long the producer blocks on a full
	// channel before giving the job back to the pool of claimables (via
	// recovery) and backing off.
	ChannelSendTimeout time.Duration
	// ShutdownTimeout is the grace window for in-flight handlers on stop.
	ShutdownTimeout time.Duration
	// ErrorDelay is the sleep after a claim iteration errors.
	ErrorDelay time.Duration

	// RecoveryEnabled turns on the stuck-job recovery loop for stores
	// that support it.
	RecoveryEnabled bool
	// JobTimeout is how long a job may stay InProgress before recovery
	// considers its worker dead.
	JobTimeout time.Duration
	// RecoveryCheckInterval is the sleep between recovery passes.
	RecoveryCheckInterval time.Duration
	// RecoveryMaxRetries is the default budget applied to jobs missing
	// the field during recovery.
	RecoveryMaxRetries int
}

// Option modifies a Config before the worker is created.
type Option func(*Config)

// WithID sets the worker id.
func WithID(id uuid.UUID) Option {
	return func(c *Config) { c.ID = id }
}

// WithMaximumConcurrency bounds the consumer pool.
func WithMaximumConcurrency(n int) Option {
	return func(c *Config) { c.MaximumConcurrency = n }
}

// WithPollingInterval sets the producer's base sleep.
func WithPollingInterval(d time.Duration) Option {
	return func(c *Config) { c.PollingInterval = d }
}

// WithMaximumQueueSize sets the channel capacity.
func WithMaximumQueueSize(n int) Option {
	return func(c *Config) { c.MaximumQueueSize = n }
}

// WithChannelSendTimeout bounds producer blocking on a saturated pool.
func WithChannelSendTimeout(d time.Duration) Option {
	return func(c *Config) { c.ChannelSendTimeout = d }
}

// WithShutdownTimeout sets the graceful-stop window.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithErrorDelay sets the sleep after a failed claim iteration.
func WithErrorDelay(d time.Duration) Option {
	return func(c *Config) { c.ErrorDelay = d }
}

// WithRecovery enables the recovery loop with the given thresholds.
func WithRecovery(jobTimeout, checkInterval time.Duration, maxRetries int) Option {
	return func(c *Config) {
		c.RecoveryEnabled = true
		if jobTimeout > 0 {
			c.JobTimeout = jobTimeout
		}
		if checkInterval > 0 {
			c.RecoveryCheckInterval = checkInterval
		}
		if maxRetries > 0 {
			c.RecoveryMaxRetries = maxRetries
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.MaximumConcurrency <= 0 {
		c.MaximumConcurrency = runtime.GOMAXPROCS(0)
	}
	if c.PollingInterval <= 0 {
		c.PollingInterval = defaultPollingInterval
	}
	if c.MaximumQueueSize <= 0 {
		c.MaximumQueueSize = defaultMaximumQueueSize
	}
	if c.ChannelSendTimeout <= 0 {
		c.ChannelSendTimeout = defaultChannelSendWait
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.ErrorDelay <= 0 {
		c.ErrorDelay = defaultErrorDelay
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.RecoveryCheckInterval <= 0 {
		c.RecoveryCheckInterval = defaultRecoveryInterval
	}
	if c.RecoveryMaxRetries <= 0 {
		c.RecoveryMaxRetries = defaultRecoveryRetries
	}
}

func (c *Config) validate() error {
	if c.MaximumConcurrency < 1 {
		return errors.New("maximum concurrency must be at least 1")
	}
	if c.MaximumQueueSize < 1 {
		return errors.New("maximum queue size must be at least 1")
	}
	return nil
}
