// Package job defines the persistent unit of work and its lifecycle state
// machine. A Job is created in StatusQueued by a submission, claimed by a
// worker (StatusInProgress), and finalized as StatusCompleted, StatusScheduled
// (pending retry) or StatusFailed. Jobs are updated by whole-value
// replacement: callers never mutate a stored Job in place.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job. The numeric values are part of the
// wire format of the distributed store and must not be renumbered.
type Status int

const (
	StatusQueued     Status = 100
	StatusScheduled  Status = 200
	StatusInProgress Status = 300
	StatusCompleted  Status = 400
	StatusFailed     Status = 500
	StatusCanceled   Status = 600
)

// String returns the human-readable name of the status as it appears in
// status responses.
func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusScheduled:
		return "Scheduled"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition may change the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// Valid reports whether s is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusScheduled, StatusInProgress, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// HTTPContext is the snapshot of the originating HTTP request captured at
// submit time. Handlers see this snapshot, never a live request, so work can
// run long after the submitting connection has closed.
type HTTPContext struct {
	Headers     map[string][]string
	RouteParams map[string]string
	QueryParams map[string][]string
}

// Clone returns a deep copy of the context.
func (c HTTPContext) Clone() HTTPContext {
	return HTTPContext{
		Headers:     cloneMultiMap(c.Headers),
		RouteParams: cloneMap(c.RouteParams),
		QueryParams: cloneMultiMap(c.QueryParams),
	}
}

// Job is the scheduled unit of work.
//
// Ownership: WorkerID is non-nil only while the job is InProgress and the
// owning worker holds the claim. All timestamps are UTC.
type Job struct {
	ID      uuid.UUID
	Name    string
	Status  Status
	Payload []byte

	Result []byte
	Error  *Error

	RetryCount      int
	MaxRetries      int
	RetryDelayUntil *time.Time

	WorkerID *uuid.UUID

	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastUpdatedAt time.Time

	HTTPContext HTTPContext

	// Version is the optimistic-concurrency token used by the in-memory
	// store. It is process-local and never leaves the wire boundary.
	Version int64
}

// New creates a job in StatusQueued with the given handler name, opaque
// payload and captured HTTP context.
func New(id uuid.UUID, name string, payload []byte, maxRetries int, httpCtx HTTPContext, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:            id,
		Name:          name,
		Status:        StatusQueued,
		Payload:       payload,
		MaxRetries:    maxRetries,
		CreatedAt:     now,
		LastUpdatedAt: now,
		HTTPContext:   httpCtx.Clone(),
	}
}

// Clone returns a deep copy of the job. Stores replace whole values on update
// so concurrent readers never observe a half-updated record; Clone is how
// writers obtain the value to modify.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = cloneBytes(j.Payload)
	c.Result = cloneBytes(j.Result)
	c.Error = j.Error.Clone()
	c.RetryDelayUntil = cloneTime(j.RetryDelayUntil)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	if j.WorkerID != nil {
		w := *j.WorkerID
		c.WorkerID = &w
	}
	c.HTTPContext = j.HTTPContext.Clone()
	return &c
}

// Claimable reports whether the job may be claimed at the given instant:
// unowned, and either queued or scheduled with an elapsed retry delay.
func (j *Job) Claimable(now time.Time) bool {
	if j.WorkerID != nil {
		return false
	}
	switch j.Status {
	case StatusQueued:
		return true
	case StatusScheduled:
		return j.RetryDelayUntil == nil || !j.RetryDelayUntil.After(now)
	}
	return false
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMultiMap(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		vv := make([]string, len(v))
		copy(vv, v)
		out[k] = vv
	}
	return out
}
