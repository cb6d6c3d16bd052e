package worker

import (
	"context"
	"sync"

	"github.com/raulk/clock"
	"golang.org/x/sync/semaphore"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/processor"
)

// consumer drains the job channel into a bounded pool of handler goroutines.
// It exits when the channel is closed and every in-flight job has finished,
// or when the shutdown grace window expires.
type consumer struct {
	processor *processor.Processor
	jobs      <-chan *job.Job
	sem       *semaphore.Weighted
	cfg       *Config
	clock     clock.Clock
}

func newConsumer(p *processor.Processor, jobs <-chan *job.Job, cfg *Config, clk clock.Clock) *consumer {
	return &consumer{
		processor: p,
		jobs:      jobs,
		sem:       semaphore.NewWeighted(int64(cfg.MaximumConcurrency)),
		cfg:       cfg,
		clock:     clk,
	}
}

// run dispatches jobs until the channel closes. Each job holds one semaphore
// slot for its whole execution. Handlers run on a detached context so that
// shutdown does not cancel in-flight work immediately; cancellation reaches
// them only when the grace window expires.
func (c *consumer) run(ctx context.Context) error {
	log.Infow("consumer started", "max_concurrency", c.cfg.MaximumConcurrency)

	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	var wg sync.WaitGroup
	for j := range c.jobs {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			// Shutdown mid-drain. The job stays InProgress in the store
			// and is rescued by recovery.
			log.Warnw("dropping claimed job on shutdown", "job", j.ID, "name", j.Name)
			continue
		}
		wg.Add(1)
		go func(j *job.Job) {
			defer wg.Done()
			defer c.sem.Release(1)
			c.processor.Process(execCtx, j)
		}(j)
	}

	return c.waitForDrain(&wg, cancelExec)
}

// waitForDrain blocks until in-flight handlers finish, bounded by the
// shutdown timeout. On timeout the execution context is cancelled so
// cooperative handlers can bail out.
func (c *consumer) waitForDrain(wg *sync.WaitGroup, cancelExec context.CancelFunc) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := c.clock.Timer(c.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		log.Infow("consumer drained")
		return nil
	case <-timer.C:
		log.Warnw("shutdown timeout elapsed with handlers still running",
			"timeout", c.cfg.ShutdownTimeout)
		cancelExec()
		return nil
	}
}
