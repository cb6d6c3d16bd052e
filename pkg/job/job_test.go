package job

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t.Run("terminal states", func(t *testing.T) {
		require.True(t, StatusCompleted.Terminal())
		require.True(t, StatusFailed.Terminal())
		require.True(t, StatusCanceled.Terminal())
		require.False(t, StatusQueued.Terminal())
		require.False(t, StatusScheduled.Terminal())
		require.False(t, StatusInProgress.Terminal())
	})

	t.Run("names", func(t *testing.T) {
		require.Equal(t, "Queued", StatusQueued.String())
		require.Equal(t, "Scheduled", StatusScheduled.String())
		require.Equal(t, "InProgress", StatusInProgress.String())
		require.Equal(t, "Completed", StatusCompleted.String())
		require.Equal(t, "Failed", StatusFailed.String())
		require.Equal(t, "Canceled", StatusCanceled.String())
		require.Equal(t, "Unknown", Status(42).String())
	})

	t.Run("validity", func(t *testing.T) {
		require.True(t, StatusQueued.Valid())
		require.False(t, Status(0).Valid())
		require.False(t, Status(700).Valid())
	})
}

func TestNew(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	j := New(id, "send-email", []byte(`{"to":"x"}`), 5, HTTPContext{}, now)

	require.Equal(t, id, j.ID)
	require.Equal(t, StatusQueued, j.Status)
	require.Equal(t, 0, j.RetryCount)
	require.Equal(t, 5, j.MaxRetries)
	require.Equal(t, now, j.CreatedAt)
	require.Equal(t, now, j.LastUpdatedAt)
	require.Nil(t, j.WorkerID)
	require.Nil(t, j.StartedAt)
	require.Nil(t, j.CompletedAt)
}

func TestClone(t *testing.T) {
	now := time.Now().UTC()
	workerID := uuid.New()
	started := now.Add(time.Second)
	j := &Job{
		ID:        uuid.New(),
		Name:      "resize-image",
		Status:    StatusInProgress,
		Payload:   []byte("payload"),
		Result:    []byte("result"),
		Error:     &Error{Code: CodeHandlerError, Message: "boom", Cause: &Cause{Type: "x", Message: "y"}},
		WorkerID:  &workerID,
		StartedAt: &started,
		HTTPContext: HTTPContext{
			Headers:     map[string][]string{"X-Trace": {"abc"}},
			RouteParams: map[string]string{"id": "42"},
			QueryParams: map[string][]string{"verbose": {"1"}},
		},
	}

	c := j.Clone()
	require.Equal(t, j, c)

	// Mutating the clone must not reach the original.
	c.Payload[0] = 'X'
	*c.WorkerID = uuid.New()
	*c.StartedAt = started.Add(time.Hour)
	c.Error.Cause.Message = "changed"
	c.HTTPContext.Headers["X-Trace"][0] = "changed"
	c.HTTPContext.RouteParams["id"] = "changed"

	require.Equal(t, byte('p'), j.Payload[0])
	require.Equal(t, workerID, *j.WorkerID)
	require.Equal(t, started, *j.StartedAt)
	require.Equal(t, "y", j.Error.Cause.Message)
	require.Equal(t, "abc", j.HTTPContext.Headers["X-Trace"][0])
	require.Equal(t, "42", j.HTTPContext.RouteParams["id"])
}

func TestClaimable(t *testing.T) {
	now := time.Now().UTC()
	workerID := uuid.New()

	t.Run("queued and unowned", func(t *testing.T) {
		j := &Job{Status: StatusQueued}
		require.True(t, j.Claimable(now))
	})

	t.Run("owned is never claimable", func(t *testing.T) {
		j := &Job{Status: StatusQueued, WorkerID: &workerID}
		require.False(t, j.Claimable(now))
	})

	t.Run("scheduled with elapsed delay", func(t *testing.T) {
		past := now.Add(-time.Second)
		j := &Job{Status: StatusScheduled, RetryDelayUntil: &past}
		require.True(t, j.Claimable(now))
	})

	t.Run("scheduled with delay exactly now", func(t *testing.T) {
		at := now
		j := &Job{Status: StatusScheduled, RetryDelayUntil: &at}
		require.True(t, j.Claimable(now))
	})

	t.Run("scheduled with future delay", func(t *testing.T) {
		future := now.Add(time.Second)
		j := &Job{Status: StatusScheduled, RetryDelayUntil: &future}
		require.False(t, j.Claimable(now))
	})

	t.Run("scheduled with nil delay", func(t *testing.T) {
		j := &Job{Status: StatusScheduled}
		require.True(t, j.Claimable(now))
	})

	t.Run("other statuses", func(t *testing.T) {
		for _, s := range []Status{StatusInProgress, StatusCompleted, StatusFailed, StatusCanceled} {
			j := &Job{Status: s}
			require.False(t, j.Claimable(now), "status %s", s)
		}
	})
}
