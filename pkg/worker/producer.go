package worker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/raulk/clock"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
)

// producer polls the store for claimable jobs and feeds the consumer channel.
// It owns the channel: when the loop exits the channel is closed, which is
// the consumer's signal to drain and stop.
type producer struct {
	claim    *claimService
	workerID uuid.UUID
	cfg      *Config
	clock    clock.Clock
	jobs     chan<- *job.Job
}

func newProducer(m *manager.Manager, jobs chan<- *job.Job, cfg *Config, clk clock.Clock) *producer {
	return &producer{
		claim: &claimService{
			manager:     m,
			jobs:        jobs,
			clock:       clk,
			sendTimeout: cfg.ChannelSendTimeout,
		},
		workerID: cfg.ID,
		cfg:      cfg,
		clock:    clk,
		jobs:     jobs,
	}
}

// run loops until ctx is cancelled. Claim errors are logged and absorbed into
// the error back-off; only cancellation ends the loop.
func (p *producer) run(ctx context.Context) error {
	defer close(p.jobs)
	log.Infow("producer started", "worker", p.workerID, "polling_interval", p.cfg.PollingInterval)

	for {
		outcome, err := p.claim.claimAndEnqueue(ctx, p.workerID)
		if err != nil {
			if errors.Is(err, errLoopClosed) {
				log.Infow("producer stopping", "worker", p.workerID)
				return nil
			}
			log.Errorw("claim iteration failed", "worker", p.workerID, "error", err)
		}

		if err := p.sleep(ctx, outcome); err != nil {
			log.Infow("producer stopping", "worker", p.workerID)
			return nil
		}
	}
}

func (p *producer) sleep(ctx context.Context, outcome ClaimOutcome) error {
	timer := p.clock.Timer(nextDelay(outcome, p.cfg))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
