package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextDelay(t *testing.T) {
	cfg := &Config{PollingInterval: time.Second, ErrorDelay: 5 * time.Second}

	t.Run("enqueued keeps the base interval", func(t *testing.T) {
		require.Equal(t, time.Second, nextDelay(JobSuccessfullyEnqueued, cfg))
	})

	t.Run("no job backs off threefold", func(t *testing.T) {
		require.Equal(t, 3*time.Second, nextDelay(NoJobFound, cfg))
	})

	t.Run("no job backoff is capped", func(t *testing.T) {
		slow := &Config{PollingInterval: 20 * time.Second, ErrorDelay: 5 * time.Second}
		require.Equal(t, maxNoJobDelay, nextDelay(NoJobFound, slow))
	})

	t.Run("saturated pool backs off twofold", func(t *testing.T) {
		require.Equal(t, 2*time.Second, nextDelay(FailedToEnqueue, cfg))
	})

	t.Run("errors use the error delay", func(t *testing.T) {
		require.Equal(t, 5*time.Second, nextDelay(ErrorOccurred, cfg))
	})
}

func TestClaimOutcomeString(t *testing.T) {
	require.Equal(t, "JobSuccessfullyEnqueued", JobSuccessfullyEnqueued.String())
	require.Equal(t, "NoJobFound", NoJobFound.String())
	require.Equal(t, "FailedToEnqueue", FailedToEnqueue.String())
	require.Equal(t, "ErrorOccurred", ErrorOccurred.String())
	require.Equal(t, "Unknown", ClaimOutcome(99).String())
}
