// Package redis provides a distributed Store backed by a Redis server.
// Multi-key transitions (claim, recovery) run as single server-side scripts
// so that workers spread across processes contend safely; see scripts.go for
// the atomicity rationale.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"github.com/redis/go-redis/v9"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/store"
)

var log = logging.Logger("store/redis")

// Key layout. Part of the external protocol: every worker sharing the store
// must agree on it.
const (
	jobKeyPrefix  = "ae:job:"
	queueKey      = "ae:jobs:queue"
	inProgressKey = "ae:jobs:inprogress"
)

// defaultClaimBatchSize bounds how many due queue members the claim script
// inspects per call before giving up on stale entries.
const defaultClaimBatchSize = 10

// Store is a distributed job store. Safe for concurrent use across processes.
type Store struct {
	client         redis.UniversalClient
	clock          clock.Clock
	claimBatchSize int
}

var _ store.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source, primarily for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithClaimBatchSize sets how many queue candidates a single claim inspects.
func WithClaimBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.claimBatchSize = n
		}
	}
}

// New creates a store on an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:         client,
		clock:          clock.New(),
		claimBatchSize: defaultClaimBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials the server and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	s := New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return s, nil
}

// Ping verifies connectivity, retrying with exponential backoff so a worker
// starting alongside its Redis container does not flap.
func (s *Store) Ping(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.client.Ping(ctx).Err()
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(30*time.Second))
	return err
}

func jobKey(id uuid.UUID) string { return jobKeyPrefix + id.String() }

func (s *Store) Create(ctx context.Context, j *job.Job) error {
	if j == nil {
		return store.ErrInvalidJob
	}
	if j.ID == uuid.Nil {
		return store.ErrInvalidJobID
	}

	fields, err := encodeJob(j)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidJob, err)
	}

	// One script covers the duplicate check, the hash write and the queue
	// insert; partial creates cannot exist.
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, strconv.FormatInt(s.clock.Now().Unix(), 10), j.ID.String())
	for k, v := range fields {
		args = append(args, k, v)
	}

	created, err := createScript.Run(ctx, s.client, []string{jobKey(j.ID), queueKey}, args...).Int()
	if err != nil {
		return fmt.Errorf("creating job %s: %w", j.ID, err)
	}
	if created == 0 {
		return store.ErrDuplicateJob
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	if id == uuid.Nil {
		return nil, store.ErrInvalidJobID
	}
	fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	j, err := decodeJob(fields)
	if err != nil {
		return nil, fmt.Errorf("loading job %s: %w", id, err)
	}
	return j, nil
}

// Update rewrites the job hash. There is no multi-field CAS in this model:
// the manager is the only writer that mutates status and ownership on
// non-terminal jobs, and it only touches jobs it has just claimed or created,
// so concurrent updates race only on unrelated fields.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	if j == nil {
		return store.ErrInvalidJob
	}
	if j.ID == uuid.Nil {
		return store.ErrInvalidJobID
	}
	exists, err := s.client.Exists(ctx, jobKey(j.ID)).Result()
	if err != nil {
		return fmt.Errorf("updating job %s: %w", j.ID, err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	fields, err := encodeJob(j)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidJob, err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(j.ID), fields)
	switch j.Status {
	case job.StatusQueued:
		pipe.ZAdd(ctx, queueKey, redis.Z{Score: float64(s.clock.Now().Unix()), Member: j.ID.String()})
		pipe.ZRem(ctx, inProgressKey, j.ID.String())
	case job.StatusScheduled:
		notBefore := s.clock.Now()
		if j.RetryDelayUntil != nil {
			notBefore = *j.RetryDelayUntil
		}
		pipe.ZAdd(ctx, queueKey, redis.Z{Score: float64(notBefore.Unix()), Member: j.ID.String()})
		pipe.ZRem(ctx, inProgressKey, j.ID.String())
	case job.StatusInProgress:
		if j.StartedAt != nil {
			pipe.ZAdd(ctx, inProgressKey, redis.Z{Score: float64(j.StartedAt.Unix()), Member: j.ID.String()})
		}
		pipe.ZRem(ctx, queueKey, j.ID.String())
	default:
		// Terminal states live in neither sorted set.
		pipe.ZRem(ctx, queueKey, j.ID.String())
		pipe.ZRem(ctx, inProgressKey, j.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) ClaimNextForWorker(ctx context.Context, workerID uuid.UUID) (*job.Job, error) {
	if workerID == uuid.Nil {
		return nil, store.ErrInvalidJobID
	}
	now := s.clock.Now().UTC()

	res, err := claimScript.Run(ctx, s.client,
		[]string{queueKey, inProgressKey},
		strconv.FormatInt(now.Unix(), 10),
		workerID.String(),
		now.Format(timeFormat),
		jobKeyPrefix,
		strconv.Itoa(s.claimBatchSize),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job for worker %s: %w", workerID, err)
	}

	reply, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("claiming job: unexpected script reply %T", res)
	}
	fields, err := decodeScriptReply(reply)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	j, err := decodeJob(fields)
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	log.Debugw("claimed job", "job", j.ID, "worker", workerID, "name", j.Name)
	return j, nil
}

func (s *Store) SupportsRecovery() bool { return true }

func (s *Store) RecoverStuckJobs(ctx context.Context, timeoutInstant time.Time, defaultMaxRetries int) (int, error) {
	now := s.clock.Now().UTC()
	canonical, err := json.Marshal(store.MaxRetriesExceededError(defaultMaxRetries))
	if err != nil {
		return 0, fmt.Errorf("encoding canonical recovery error: %w", err)
	}

	res, err := recoverScript.Run(ctx, s.client,
		[]string{inProgressKey, queueKey},
		strconv.FormatInt(timeoutInstant.Unix(), 10),
		strconv.Itoa(defaultMaxRetries),
		strconv.FormatInt(now.Unix(), 10),
		now.Format(timeFormat),
		jobKeyPrefix,
		string(canonical),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("recovering stuck jobs: %w", err)
	}
	if res > 0 {
		log.Infow("recovered stuck jobs", "count", res, "timeout_instant", timeoutInstant)
	}
	return res, nil
}

// Healthy reports current connectivity with a single ping.
func (s *Store) Healthy(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
