// Package executor runs registered handlers on behalf of the processor. It
// owns the per-invocation scope and the panic fence: a handler can fail, but
// it cannot take the worker down with it.
package executor

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/registry"
)

var log = logging.Logger("executor")

// ScopeFactory opens per-invocation resources for a handler call (database
// sessions, per-request caches). The returned context carries the scope; the
// close function runs on every exit path, success, failure or panic.
type ScopeFactory func(ctx context.Context, j *job.Job) (context.Context, func(), error)

// Executor invokes registered handlers.
type Executor struct {
	registry *registry.Registry
	scope    ScopeFactory
}

// Option configures the executor.
type Option func(*Executor)

// WithScopeFactory installs a per-invocation scope. Without one, handler
// dependencies are whatever the handler closed over at registration.
func WithScopeFactory(f ScopeFactory) Option {
	return func(e *Executor) { e.scope = f }
}

// New creates an executor over the registry.
func New(r *registry.Registry, opts ...Option) *Executor {
	e := &Executor{registry: r}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteHandler resolves the named handler and invokes it with the
// deserialized request. A missing registration is a HANDLER_NOT_FOUND
// failure; a panic inside the handler is flattened into a structured error
// with its stack.
func (e *Executor) ExecuteHandler(ctx context.Context, name string, request any, j *job.Job) (result []byte, jobErr *job.Error) {
	reg, ok := e.registry.Lookup(name)
	if !ok {
		return nil, job.NewErrorf(job.CodeHandlerNotFound, "no handler registered for job %q", name)
	}
	return e.Execute(ctx, reg, request, j)
}

// Execute invokes an already-resolved registration.
func (e *Executor) Execute(ctx context.Context, reg *registry.Registration, request any, j *job.Job) (result []byte, jobErr *job.Error) {
	if e.scope != nil {
		scopedCtx, closeScope, err := e.scope(ctx, j)
		if err != nil {
			return nil, job.WrapError(job.CodeHandlerError,
				fmt.Sprintf("opening scope for job %q", reg.Name), err)
		}
		ctx = scopedCtx
		defer closeScope()
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("recovered from panic in handler", "name", reg.Name, "job", j.ID, "panic", rec)
			result = nil
			jobErr = job.FromPanic(rec)
		}
	}()

	return reg.Invoke(ctx, request, j)
}
