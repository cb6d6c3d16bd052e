// Package manager owns every job state transition. Submissions, workers and
// the recovery pass all mutate jobs through it, which is what keeps the
// single-writer discipline: a job's mutable state has exactly one authorized
// writer at any moment.
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/store"
)

var log = logging.Logger("manager")

// IdempotencyHeader lets a client pin the job id of a submission. Submitting
// twice with the same id observes the first job's state, not a duplicate.
const IdempotencyHeader = "Async-Job-Id"

const (
	defaultMaxRetries     = 3
	defaultRetryDelayBase = 2 * time.Second

	// maxRetryDelay caps the exponential curve. The retry budget is user
	// configuration, so the shift must not overflow or schedule a job into
	// the far future.
	maxRetryDelay = 24 * time.Hour
)

// Config tunes the manager.
type Config struct {
	// DefaultMaxRetries is the retry budget for newly submitted jobs.
	DefaultMaxRetries int
	// RetryDelayBase is the base of the exponential retry delay:
	// delay(k) = RetryDelayBase * 2^k, where k is the retry count after
	// the failed attempt has been charged.
	RetryDelayBase time.Duration
}

// Manager submits, claims and finalizes jobs against a store.
type Manager struct {
	store store.Store
	clock clock.Clock
	cfg   Config
}

// Option configures the manager.
type Option func(*Manager)

// WithClock overrides the time source, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// New creates a manager. Zero config fields fall back to defaults.
func New(s store.Store, cfg Config, opts ...Option) *Manager {
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelayBase < 0 {
		cfg.RetryDelayBase = defaultRetryDelayBase
	}
	m := &Manager{store: s, clock: clock.New(), cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit creates a job in StatusQueued and persists it. If the captured
// context carries a valid idempotency header and a job with that id already
// exists, the existing job is returned unchanged. An invalid header value is
// ignored: submission never fails on a bad idempotency key.
func (m *Manager) Submit(ctx context.Context, name string, payload []byte, httpCtx job.HTTPContext) (*job.Job, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty job name", store.ErrInvalidJob)
	}

	id, pinned := requestedJobID(httpCtx)
	if pinned {
		existing, err := m.store.GetByID(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("checking idempotency key %s: %w", id, err)
		}
	} else {
		id = uuid.New()
	}

	j := job.New(id, name, payload, m.cfg.DefaultMaxRetries, httpCtx, m.clock.Now())
	if err := m.store.Create(ctx, j); err != nil {
		if errors.Is(err, store.ErrDuplicateJob) {
			// Lost a race with a concurrent identical submission.
			return m.store.GetByID(ctx, id)
		}
		return nil, fmt.Errorf("submitting job %q: %w", name, err)
	}
	log.Debugw("job submitted", "job", j.ID, "name", name, "max_retries", j.MaxRetries)
	return j, nil
}

// ClaimNextAvailableJob atomically claims the oldest eligible job for the
// worker. Returns (nil, nil) when nothing is claimable.
func (m *Manager) ClaimNextAvailableJob(ctx context.Context, workerID uuid.UUID) (*job.Job, error) {
	return m.store.ClaimNextForWorker(ctx, workerID)
}

// GetJobByID is the passthrough used by status queries.
func (m *Manager) GetJobByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return m.store.GetByID(ctx, id)
}

// ProcessJobSuccess finalizes a job as Completed with the serialized result.
func (m *Manager) ProcessJobSuccess(ctx context.Context, id uuid.UUID, result []byte) error {
	return m.finalize(ctx, id, func(j *job.Job, now time.Time) {
		j.Status = job.StatusCompleted
		j.Result = result
		j.Error = nil
		j.WorkerID = nil
		j.RetryDelayUntil = nil
		completed := now
		j.CompletedAt = &completed
		j.LastUpdatedAt = now
	})
}

// ProcessJobFailure records a failed attempt. While retry budget remains the
// job is rescheduled with an exponential delay; otherwise it fails
// permanently.
func (m *Manager) ProcessJobFailure(ctx context.Context, id uuid.UUID, jobErr *job.Error) error {
	return m.finalize(ctx, id, func(j *job.Job, now time.Time) {
		j.Error = jobErr
		j.WorkerID = nil
		j.LastUpdatedAt = now
		if j.RetryCount < j.MaxRetries {
			j.RetryCount++
			until := now.Add(m.RetryDelay(j.RetryCount))
			j.Status = job.StatusScheduled
			j.RetryDelayUntil = &until
			j.StartedAt = nil
			return
		}
		j.Status = job.StatusFailed
		j.RetryDelayUntil = nil
		completed := now
		j.CompletedAt = &completed
	})
}

// RetryDelay computes the wait before retry k becomes claimable, capped at
// maxRetryDelay.
func (m *Manager) RetryDelay(retryCount int) time.Duration {
	if m.cfg.RetryDelayBase <= 0 {
		return 0
	}
	if retryCount >= 63 || m.cfg.RetryDelayBase > maxRetryDelay>>retryCount {
		return maxRetryDelay
	}
	return m.cfg.RetryDelayBase * (1 << retryCount)
}

// finalize loads the job, applies the transition and persists it. A terminal
// job is never transitioned again. One reload is attempted on a concurrency
// conflict; after that the job is left for recovery.
func (m *Manager) finalize(ctx context.Context, id uuid.UUID, apply func(*job.Job, time.Time)) error {
	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		j, err := m.store.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("finalizing job %s: %w", id, err)
		}
		if j.Status.Terminal() {
			return fmt.Errorf("finalizing job %s: already %s: %w", id, j.Status, store.ErrConcurrencyConflict)
		}
		apply(j, m.clock.Now().UTC())
		err = m.store.Update(ctx, j)
		if err == nil {
			log.Debugw("job finalized", "job", id, "status", j.Status, "retry_count", j.RetryCount)
			return nil
		}
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return fmt.Errorf("finalizing job %s: %w", id, err)
		}
		lastErr = err
	}
	return fmt.Errorf("finalizing job %s: %w", id, lastErr)
}

// requestedJobID extracts a valid pinned job id from the idempotency header,
// if any.
func requestedJobID(httpCtx job.HTTPContext) (uuid.UUID, bool) {
	for name, values := range httpCtx.Headers {
		if !strings.EqualFold(name, IdempotencyHeader) {
			continue
		}
		for _, v := range values {
			if id, err := uuid.Parse(v); err == nil && id != uuid.Nil {
				return id, true
			}
		}
	}
	return uuid.Nil, false
}
