// Package processor is the execution pipeline for a claimed job:
// deserialize the payload, run the handler, record the outcome. Every path
// ends in ProcessJobSuccess or ProcessJobFailure; if the finalization write
// itself fails the job is left InProgress for recovery to pick up.
package processor

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/conveyorq/conveyor/pkg/executor"
	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
	"github.com/conveyorq/conveyor/pkg/registry"
)

var log = logging.Logger("processor")

// Processor executes claimed jobs.
type Processor struct {
	registry *registry.Registry
	executor *executor.Executor
	manager  *manager.Manager
}

// New creates a processor.
func New(r *registry.Registry, e *executor.Executor, m *manager.Manager) *Processor {
	return &Processor{registry: r, executor: e, manager: m}
}

// Process runs one job to a recorded outcome. It never panics out: handler
// panics are fenced by the executor and recorded as failures.
func (p *Processor) Process(ctx context.Context, j *job.Job) {
	reg, ok := p.registry.Lookup(j.Name)
	if !ok {
		p.fail(ctx, j, job.NewErrorf(job.CodeHandlerNotFound, "no handler registered for job %q", j.Name))
		return
	}

	request, err := reg.Deserialize(j.Payload)
	if err != nil {
		p.fail(ctx, j, job.WrapError(job.CodeDeserializationFailed,
			fmt.Sprintf("deserializing payload of job %q", j.Name), err))
		return
	}

	result, jobErr := p.executor.Execute(ctx, reg, request, j)
	if jobErr != nil {
		log.Debugw("handler failed", "job", j.ID, "name", j.Name,
			"code", jobErr.Code, "category", job.Classify(jobErr).String())
		p.fail(ctx, j, jobErr)
		return
	}

	if err := p.manager.ProcessJobSuccess(ctx, j.ID, result); err != nil {
		// Finalization failed after the handler ran; recovery will
		// re-attempt the job, which is the at-least-once contract.
		log.Errorw("failed to record job success", "job", j.ID, "name", j.Name, "error", err)
	}
}

func (p *Processor) fail(ctx context.Context, j *job.Job, jobErr *job.Error) {
	if err := p.manager.ProcessJobFailure(ctx, j.ID, jobErr); err != nil {
		log.Errorw("failed to record job failure", "job", j.ID, "name", j.Name,
			"handler_error", jobErr, "error", err)
	}
}
