package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/store"
)

func newJob(t *testing.T, now time.Time) *job.Job {
	t.Helper()
	return job.New(uuid.New(), "test-job", []byte(`{}`), 3, job.HTTPContext{}, now)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()
	j := newJob(t, time.Now())

	require.NoError(t, s.Create(ctx, j))

	got, err := s.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, j.ID, got.ID)
	require.Equal(t, job.StatusQueued, got.Status)

	t.Run("duplicate id", func(t *testing.T) {
		require.ErrorIs(t, s.Create(ctx, j), store.ErrDuplicateJob)
	})

	t.Run("nil job", func(t *testing.T) {
		require.ErrorIs(t, s.Create(ctx, nil), store.ErrInvalidJob)
	})

	t.Run("nil id", func(t *testing.T) {
		bad := newJob(t, time.Now())
		bad.ID = uuid.Nil
		require.ErrorIs(t, s.Create(ctx, bad), store.ErrInvalidJobID)
		_, err := s.GetByID(ctx, uuid.Nil)
		require.ErrorIs(t, err, store.ErrInvalidJobID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.GetByID(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	j := newJob(t, time.Now())
	require.NoError(t, s.Create(ctx, j))

	a, err := s.GetByID(ctx, j.ID)
	require.NoError(t, err)
	a.Name = "mutated"

	b, err := s.GetByID(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, "test-job", b.Name)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := New()
	j := newJob(t, time.Now())
	require.NoError(t, s.Create(ctx, j))

	t.Run("current version wins", func(t *testing.T) {
		loaded, err := s.GetByID(ctx, j.ID)
		require.NoError(t, err)
		loaded.Status = job.StatusCanceled
		require.NoError(t, s.Update(ctx, loaded))

		got, err := s.GetByID(ctx, j.ID)
		require.NoError(t, err)
		require.Equal(t, job.StatusCanceled, got.Status)
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale, err := s.GetByID(ctx, j.ID)
		require.NoError(t, err)

		fresh, err := s.GetByID(ctx, j.ID)
		require.NoError(t, err)
		fresh.RetryCount = 1
		require.NoError(t, s.Update(ctx, fresh))

		stale.RetryCount = 2
		require.ErrorIs(t, s.Update(ctx, stale), store.ErrConcurrencyConflict)
	})

	t.Run("missing job", func(t *testing.T) {
		ghost := newJob(t, time.Now())
		require.ErrorIs(t, s.Update(ctx, ghost), store.ErrNotFound)
	})
}

func TestClaimNextForWorker(t *testing.T) {
	ctx := context.Background()
	workerID := uuid.New()

	t.Run("empty store", func(t *testing.T) {
		s := New()
		j, err := s.ClaimNextForWorker(ctx, workerID)
		require.NoError(t, err)
		require.Nil(t, j)
	})

	t.Run("oldest first", func(t *testing.T) {
		mock := clock.NewMock()
		mock.Set(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
		s := New(WithClock(mock))

		older := job.New(uuid.New(), "older", nil, 3, job.HTTPContext{}, mock.Now().Add(-time.Hour))
		newer := job.New(uuid.New(), "newer", nil, 3, job.HTTPContext{}, mock.Now())
		require.NoError(t, s.Create(ctx, newer))
		require.NoError(t, s.Create(ctx, older))

		claimed, err := s.ClaimNextForWorker(ctx, workerID)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.Equal(t, older.ID, claimed.ID)
		require.Equal(t, job.StatusInProgress, claimed.Status)
		require.NotNil(t, claimed.WorkerID)
		require.Equal(t, workerID, *claimed.WorkerID)
		require.NotNil(t, claimed.StartedAt)
	})

	t.Run("future retry delay is not claimable", func(t *testing.T) {
		mock := clock.NewMock()
		mock.Set(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
		s := New(WithClock(mock))

		j := job.New(uuid.New(), "delayed", nil, 3, job.HTTPContext{}, mock.Now())
		until := mock.Now().Add(time.Minute)
		j.Status = job.StatusScheduled
		j.RetryDelayUntil = &until
		require.NoError(t, s.Create(ctx, j))

		claimed, err := s.ClaimNextForWorker(ctx, workerID)
		require.NoError(t, err)
		require.Nil(t, claimed)

		mock.Add(2 * time.Minute)
		claimed, err = s.ClaimNextForWorker(ctx, workerID)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.Equal(t, j.ID, claimed.ID)
		require.Nil(t, claimed.RetryDelayUntil)
	})

	t.Run("exactly one concurrent winner", func(t *testing.T) {
		s := New()
		j := newJob(t, time.Now())
		require.NoError(t, s.Create(ctx, j))

		const claimers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				claimed, err := s.ClaimNextForWorker(ctx, uuid.New())
				require.NoError(t, err)
				if claimed != nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})

	t.Run("claimed job is not claimable again", func(t *testing.T) {
		s := New()
		j := newJob(t, time.Now())
		require.NoError(t, s.Create(ctx, j))

		first, err := s.ClaimNextForWorker(ctx, workerID)
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := s.ClaimNextForWorker(ctx, uuid.New())
		require.NoError(t, err)
		require.Nil(t, second)
	})
}

func TestRecoveryUnsupported(t *testing.T) {
	s := New()
	require.False(t, s.SupportsRecovery())
	_, err := s.RecoverStuckJobs(context.Background(), time.Now(), 3)
	require.ErrorIs(t, err, store.ErrRecoveryUnsupported)
}
