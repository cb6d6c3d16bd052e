// Package memory provides an in-process Store backed by a concurrent map.
// All updates go through compare-and-swap of whole job values so concurrent
// readers never observe a half-updated record.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raulk/clock"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/store"
)

// claimScanPasses bounds the rescan loop when a CAS loses a race. A handful
// of passes suffices in a single-process setting.
const claimScanPasses = 4

// Store is an in-memory job store. Safe for concurrent use.
type Store struct {
	jobs  sync.Map // uuid.UUID -> *job.Job
	clock clock.Clock
}

var _ store.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(_ context.Context, j *job.Job) error {
	if j == nil {
		return store.ErrInvalidJob
	}
	if j.ID == uuid.Nil {
		return store.ErrInvalidJobID
	}
	c := j.Clone()
	c.Version = 1
	if _, loaded := s.jobs.LoadOrStore(j.ID, c); loaded {
		return store.ErrDuplicateJob
	}
	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	if id == uuid.Nil {
		return nil, store.ErrInvalidJobID
	}
	v, ok := s.jobs.Load(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return v.(*job.Job).Clone(), nil
}

// Update replaces the stored job if the caller's copy is current. The version
// token detects writers that loaded before a competing update landed.
func (s *Store) Update(_ context.Context, j *job.Job) error {
	if j == nil {
		return store.ErrInvalidJob
	}
	if j.ID == uuid.Nil {
		return store.ErrInvalidJobID
	}
	v, ok := s.jobs.Load(j.ID)
	if !ok {
		return store.ErrNotFound
	}
	current := v.(*job.Job)
	if current.Version != j.Version {
		return store.ErrConcurrencyConflict
	}
	next := j.Clone()
	next.Version = current.Version + 1
	next.LastUpdatedAt = s.clock.Now().UTC()
	if !s.jobs.CompareAndSwap(j.ID, current, next) {
		return store.ErrConcurrencyConflict
	}
	return nil
}

// ClaimNextForWorker scans for claimable jobs oldest-first and attempts a CAS
// on the best candidate. A lost CAS triggers a bounded rescan; an empty scan
// is the no-job outcome.
func (s *Store) ClaimNextForWorker(_ context.Context, workerID uuid.UUID) (*job.Job, error) {
	if workerID == uuid.Nil {
		return nil, store.ErrInvalidJobID
	}
	now := s.clock.Now().UTC()

	for pass := 0; pass < claimScanPasses; pass++ {
		var candidates []*job.Job
		s.jobs.Range(func(_, v any) bool {
			j := v.(*job.Job)
			if j.Claimable(now) {
				candidates = append(candidates, j)
			}
			return true
		})
		if len(candidates) == 0 {
			return nil, nil
		}
		sort.Slice(candidates, func(i, k int) bool {
			return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
		})

		current := candidates[0]
		claimed := current.Clone()
		started := now
		claimed.Status = job.StatusInProgress
		claimed.WorkerID = &workerID
		claimed.StartedAt = &started
		claimed.RetryDelayUntil = nil
		claimed.LastUpdatedAt = now
		claimed.Version = current.Version + 1

		if s.jobs.CompareAndSwap(current.ID, current, claimed) {
			return claimed.Clone(), nil
		}
		// Another claimer won this candidate; rescan.
	}
	return nil, nil
}

// SupportsRecovery is false: a single process cannot outlive its own crash,
// so there is nobody left to recover from.
func (s *Store) SupportsRecovery() bool { return false }

func (s *Store) RecoverStuckJobs(context.Context, time.Time, int) (int, error) {
	return 0, store.ErrRecoveryUnsupported
}

// Len returns the number of stored jobs. Intended for tests.
func (s *Store) Len() int {
	n := 0
	s.jobs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
