package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/raulk/clock"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
)

// ClaimOutcome is the result of one producer iteration. The delay calculator
// maps it to the next sleep.
type ClaimOutcome int

const (
	// JobSuccessfullyEnqueued: a job was claimed and handed to the pool.
	JobSuccessfullyEnqueued ClaimOutcome = iota
	// NoJobFound: nothing was claimable.
	NoJobFound
	// FailedToEnqueue: a job was claimed but the pool stayed saturated
	// past the send timeout. The job remains InProgress and is rescued by
	// recovery.
	FailedToEnqueue
	// ErrorOccurred: the claim itself failed.
	ErrorOccurred
)

func (o ClaimOutcome) String() string {
	switch o {
	case JobSuccessfullyEnqueued:
		return "JobSuccessfullyEnqueued"
	case NoJobFound:
		return "NoJobFound"
	case FailedToEnqueue:
		return "FailedToEnqueue"
	case ErrorOccurred:
		return "ErrorOccurred"
	}
	return "Unknown"
}

// errLoopClosed terminates the producer: the consumer is gone or the
// operation was cancelled.
var errLoopClosed = errors.New("claim loop closed")

// claimService performs one claim-and-enqueue iteration against the manager.
type claimService struct {
	manager     *manager.Manager
	jobs        chan<- *job.Job
	clock       clock.Clock
	sendTimeout time.Duration
}

// claimAndEnqueue claims at most one job and pushes it onto the channel.
func (s *claimService) claimAndEnqueue(ctx context.Context, workerID uuid.UUID) (ClaimOutcome, error) {
	j, err := s.manager.ClaimNextAvailableJob(ctx, workerID)
	if err != nil {
		if ctx.Err() != nil {
			return ErrorOccurred, errLoopClosed
		}
		return ErrorOccurred, err
	}
	if j == nil {
		return NoJobFound, nil
	}

	// Fast path: non-blocking send.
	select {
	case s.jobs <- j:
		return JobSuccessfullyEnqueued, nil
	default:
	}

	// Pool saturated: block, but not forever.
	timer := s.clock.Timer(s.sendTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- j:
		return JobSuccessfullyEnqueued, nil
	case <-timer.C:
		return FailedToEnqueue, nil
	case <-ctx.Done():
		return ErrorOccurred, errLoopClosed
	}
}
