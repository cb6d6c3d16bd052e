package redis

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/conveyorq/conveyor/pkg/job"
)

// fieldsToStrings mimics what HGETALL returns for an encoded hash.
func fieldsToStrings(t *testing.T, fields map[string]any) map[string]string {
	t.Helper()
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		require.True(t, ok, "field %s is %T", k, v)
		out[k] = s
	}
	return out
}

func TestCodecRoundTrip(t *testing.T) {
	t.Run("fresh job", func(t *testing.T) {
		now := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
		j := job.New(uuid.New(), "send-email", []byte(`{"to":"a"}`), 3, job.HTTPContext{
			Headers:     map[string][]string{"X-Trace": {"abc"}},
			RouteParams: map[string]string{"id": "42"},
			QueryParams: map[string][]string{"v": {"1", "2"}},
		}, now)

		fields, err := encodeJob(j)
		require.NoError(t, err)

		decoded, err := decodeJob(fieldsToStrings(t, fields))
		require.NoError(t, err)
		require.Equal(t, j.ID, decoded.ID)
		require.Equal(t, j.Name, decoded.Name)
		require.Equal(t, job.StatusQueued, decoded.Status)
		require.Equal(t, j.Payload, decoded.Payload)
		require.Equal(t, 3, decoded.MaxRetries)
		require.True(t, j.CreatedAt.Equal(decoded.CreatedAt))
		require.Nil(t, decoded.WorkerID)
		require.Nil(t, decoded.StartedAt)
		require.Nil(t, decoded.Error)
		require.Equal(t, j.HTTPContext.Headers, decoded.HTTPContext.Headers)
		require.Equal(t, j.HTTPContext.RouteParams, decoded.HTTPContext.RouteParams)
		require.Equal(t, j.HTTPContext.QueryParams, decoded.HTTPContext.QueryParams)
	})

	t.Run("claimed job with error history", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Nanosecond)
		workerID := uuid.New()
		started := now.Add(time.Second)
		until := now.Add(time.Minute)
		j := &job.Job{
			ID:              uuid.New(),
			Name:            "resize",
			Status:          job.StatusInProgress,
			Payload:         []byte(`{}`),
			Result:          []byte(`{"ok":true}`),
			Error:           &job.Error{Code: job.CodeHandlerError, Message: "try 1 failed", Cause: &job.Cause{Type: "net", Message: "refused"}},
			RetryCount:      1,
			MaxRetries:      3,
			RetryDelayUntil: &until,
			WorkerID:        &workerID,
			CreatedAt:       now,
			StartedAt:       &started,
			LastUpdatedAt:   now,
		}

		fields, err := encodeJob(j)
		require.NoError(t, err)
		require.Equal(t, "300", fields[fieldStatus])

		decoded, err := decodeJob(fieldsToStrings(t, fields))
		require.NoError(t, err)
		require.Equal(t, j.Status, decoded.Status)
		require.Equal(t, 1, decoded.RetryCount)
		require.Equal(t, workerID, *decoded.WorkerID)
		require.True(t, started.Equal(*decoded.StartedAt))
		require.True(t, until.Equal(*decoded.RetryDelayUntil))
		require.Equal(t, j.Error, decoded.Error)
	})
}

func TestEncodeStartedAtUnix(t *testing.T) {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	j := job.New(uuid.New(), "x", nil, 3, job.HTTPContext{}, started)

	fields, err := encodeJob(j)
	require.NoError(t, err)
	require.Equal(t, "", fields[fieldStartedAtUnix])

	j.StartedAt = &started
	fields, err = encodeJob(j)
	require.NoError(t, err)
	require.Equal(t, "1740823200", fields[fieldStartedAtUnix])
}

func TestDecodeJobErrors(t *testing.T) {
	base := func() map[string]string {
		j := job.New(uuid.New(), "x", nil, 3, job.HTTPContext{}, time.Now())
		fields, err := encodeJob(j)
		require.NoError(t, err)
		return fieldsToStrings(t, fields)
	}

	t.Run("bad id", func(t *testing.T) {
		fields := base()
		fields[fieldID] = "nope"
		_, err := decodeJob(fields)
		require.Error(t, err)
	})

	t.Run("unknown status", func(t *testing.T) {
		fields := base()
		fields[fieldStatus] = "700"
		_, err := decodeJob(fields)
		require.Error(t, err)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		fields := base()
		fields[fieldCreatedAt] = "yesterday"
		_, err := decodeJob(fields)
		require.Error(t, err)
	})
}

func TestDecodeScriptReply(t *testing.T) {
	t.Run("pairs", func(t *testing.T) {
		fields, err := decodeScriptReply([]any{"Id", "abc", "Name", "x"})
		require.NoError(t, err)
		require.Equal(t, map[string]string{"Id": "abc", "Name": "x"}, fields)
	})

	t.Run("odd length", func(t *testing.T) {
		_, err := decodeScriptReply([]any{"Id"})
		require.Error(t, err)
	})

	t.Run("non-string member", func(t *testing.T) {
		_, err := decodeScriptReply([]any{"Id", 7})
		require.Error(t, err)
	})
}
