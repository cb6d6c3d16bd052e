// Package worker runs the claim-execute loop: a producer polls the store for
// claimable jobs and feeds a bounded channel; a consumer drains it into a
// semaphore-bounded pool of handler executions; an optional recovery loop
// rescues jobs abandoned by crashed workers.
package worker

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"golang.org/x/sync/errgroup"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
	"github.com/conveyorq/conveyor/pkg/processor"
	"github.com/conveyorq/conveyor/pkg/store"
)

var log = logging.Logger("worker")

// Worker ties the producer, consumer and recovery loops to one worker id.
type Worker struct {
	manager   *manager.Manager
	processor *processor.Processor
	store     store.Store
	cfg       Config
	clock     clock.Clock

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  chan struct{}
	started  bool
	shutdown bool
}

// New creates a worker. Options override defaults; an unset id gets a fresh
// uuid so two processes sharing a store never claim as the same worker.
func New(m *manager.Manager, p *processor.Processor, s store.Store, opts ...Option) (*Worker, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	return &Worker{
		manager:   m,
		processor: p,
		store:     s,
		cfg:       cfg,
		clock:     clock.New(),
	}, nil
}

// WithWorkerClock overrides the worker's time source, primarily for tests.
func (w *Worker) WithWorkerClock(c clock.Clock) *Worker {
	w.clock = c
	return w
}

// ID returns the worker's identity as recorded on claimed jobs.
func (w *Worker) ID() string { return w.cfg.ID.String() }

// Startup launches the loops and returns. Errors after startup surface
// through Shutdown.
func (w *Worker) Startup(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}
	w.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.stopped = make(chan struct{})

	jobs := make(chan *job.Job, w.cfg.MaximumQueueSize)
	prod := newProducer(w.manager, jobs, &w.cfg, w.clock)
	cons := newConsumer(w.processor, jobs, &w.cfg, w.clock)

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error { return prod.run(egCtx) })
	// The consumer ignores egCtx for channel draining on purpose: it must
	// finish in-flight work after cancellation, bounded by ShutdownTimeout.
	eg.Go(func() error { return cons.run(egCtx) })

	if w.cfg.RecoveryEnabled && w.store.SupportsRecovery() {
		rec := newRecoveryLoop(w.store, &w.cfg, w.clock)
		eg.Go(func() error { return rec.run(egCtx) })
	} else if w.cfg.RecoveryEnabled {
		log.Warnw("recovery requested but store does not support it", "worker", w.cfg.ID)
	}

	go func() {
		defer close(w.stopped)
		if err := eg.Wait(); err != nil {
			log.Errorw("worker loop exited with error", "worker", w.cfg.ID, "error", err)
		}
	}()

	log.Infow("worker started", "worker", w.cfg.ID,
		"max_concurrency", w.cfg.MaximumConcurrency,
		"queue_size", w.cfg.MaximumQueueSize,
		"recovery", w.cfg.RecoveryEnabled && w.store.SupportsRecovery())
	return nil
}

// Shutdown cancels the loops and waits for in-flight handlers to drain,
// bounded by the configured shutdown timeout and the caller's ctx.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started || w.shutdown {
		w.mu.Unlock()
		return nil
	}
	w.shutdown = true
	cancel, stopped := w.cancel, w.stopped
	w.mu.Unlock()

	cancel()
	select {
	case <-stopped:
		log.Infow("worker stopped", "worker", w.cfg.ID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown interrupted: %w", ctx.Err())
	}
}
