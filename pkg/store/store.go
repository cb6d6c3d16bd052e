// Package store defines the persistence boundary for jobs. Implementations
// must provide atomic claims: between two concurrent claim attempts on the
// same candidate, exactly one wins.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/conveyorq/conveyor/pkg/job"
)

// Sentinel errors returned by stores. Callers match with errors.Is and map
// them onto structured error codes at the boundary where they are recorded.
var (
	// ErrInvalidJob is returned by Create for a nil job.
	ErrInvalidJob = errors.New("invalid job")
	// ErrInvalidJobID is returned for a zero job id.
	ErrInvalidJobID = errors.New("invalid job id")
	// ErrDuplicateJob is returned by Create when the id already exists.
	ErrDuplicateJob = errors.New("job already exists")
	// ErrNotFound is returned when no job has the given id.
	ErrNotFound = errors.New("job not found")
	// ErrConcurrencyConflict is returned by Update when another writer won.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrRecoveryUnsupported is returned by RecoverStuckJobs on stores that
	// report SupportsRecovery() == false.
	ErrRecoveryUnsupported = errors.New("store does not support recovery")
)

// Store persists jobs and arbitrates claims.
//
// ClaimNextForWorker returns (nil, nil) when no job is eligible; absence of
// work is a success outcome, not an error. When a job is eligible — status
// Queued, or Scheduled with an elapsed retry delay, and no owner — the store
// atomically transitions exactly one such job to InProgress with the given
// worker id and a fresh StartedAt, preferring the oldest CreatedAt.
type Store interface {
	Create(ctx context.Context, j *job.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error)
	// Update replaces the stored job atomically with respect to concurrent
	// updates of the same job.
	Update(ctx context.Context, j *job.Job) error
	ClaimNextForWorker(ctx context.Context, workerID uuid.UUID) (*job.Job, error)

	// SupportsRecovery reports whether RecoverStuckJobs is implemented.
	SupportsRecovery() bool
	// RecoverStuckJobs rescues jobs left InProgress at or before
	// timeoutInstant: jobs with retry budget left are rescheduled for
	// immediate re-claim with RetryCount incremented; exhausted jobs are
	// failed with a canonical error. Returns the number rescheduled.
	// Each job's transition is atomic; the pass is idempotent over
	// observable state.
	RecoverStuckJobs(ctx context.Context, timeoutInstant time.Time, defaultMaxRetries int) (int, error)
}

// MaxRetriesExceededError is the canonical error recorded on a job that
// recovery (or the manager) fails permanently for exhausting its budget.
func MaxRetriesExceededError(retryCount int) *job.Error {
	return job.NewErrorf(job.CodeMaxRetriesExceeded, "job exceeded maximum retries (%d)", retryCount)
}
