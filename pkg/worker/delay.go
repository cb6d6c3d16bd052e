package worker

import "time"

// nextDelay maps a claim outcome to the sleep before the next iteration. Work
// was found: stay at the base interval. Nothing claimable: back off harder,
// capped so a refilled queue is noticed quickly. A saturated pool already
// cost ChannelSendTimeout, so it gets a shorter multiple.
func nextDelay(outcome ClaimOutcome, cfg *Config) time.Duration {
	switch outcome {
	case JobSuccessfullyEnqueued:
		return cfg.PollingInterval
	case NoJobFound:
		d := 3 * cfg.PollingInterval
		if d > maxNoJobDelay {
			return maxNoJobDelay
		}
		return d
	case FailedToEnqueue:
		return 2 * cfg.PollingInterval
	case ErrorOccurred:
		return cfg.ErrorDelay
	}
	return cfg.PollingInterval
}
