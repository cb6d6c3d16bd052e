package worker

import (
	"context"

	"github.com/raulk/clock"

	"github.com/conveyorq/conveyor/pkg/store"
)

// recoveryLoop periodically rescues jobs stuck InProgress past the job
// timeout, the footprint a crashed worker leaves behind. It only runs against
// stores that implement recovery; everything it does is advisory, so errors
// are logged and the loop keeps going.
type recoveryLoop struct {
	store store.Store
	cfg   *Config
	clock clock.Clock
}

func newRecoveryLoop(s store.Store, cfg *Config, clk clock.Clock) *recoveryLoop {
	return &recoveryLoop{store: s, cfg: cfg, clock: clk}
}

func (r *recoveryLoop) run(ctx context.Context) error {
	log.Infow("recovery loop started",
		"job_timeout", r.cfg.JobTimeout,
		"check_interval", r.cfg.RecoveryCheckInterval,
		"default_max_retries", r.cfg.RecoveryMaxRetries)

	ticker := r.clock.Ticker(r.cfg.RecoveryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("recovery loop stopping")
			return nil
		case <-ticker.C:
			r.recoverOnce(ctx)
		}
	}
}

func (r *recoveryLoop) recoverOnce(ctx context.Context) {
	timeoutInstant := r.clock.Now().UTC().Add(-r.cfg.JobTimeout)
	recovered, err := r.store.RecoverStuckJobs(ctx, timeoutInstant, r.cfg.RecoveryMaxRetries)
	if err != nil {
		log.Errorw("recovery pass failed", "error", err)
		return
	}
	if recovered > 0 {
		log.Infow("recovered stuck jobs", "count", recovered)
	}
}
