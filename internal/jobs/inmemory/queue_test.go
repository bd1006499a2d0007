package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-tracker/internal/domain"
	"github.com/dvloznov/cashflow-tracker/internal/jobs"
	"github.com/dvloznov/cashflow-tracker/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jobCounter struct {
	metrics.NoOpCollector
	mu     sync.Mutex
	counts map[string]int
}

func (c *jobCounter) RecordJob(jobType, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[jobType+"/"+status]++
}

func (c *jobCounter) get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.Job {
	t.Helper()
	var got *jobs.Job
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestQueue_ProcessesJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	col := &jobCounter{}
	q := NewQueue(10, store, WithWorkers(3), WithMetrics(col))
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		return map[string]any{"user": job.UserID}, nil
	}))
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeReconcileBalance, UserID: "u1"}
	require.NoError(t, q.Publish(ctx, job))
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.MaxRetries)
	assert.False(t, job.CreatedAt.IsZero())

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "u1", done.Result["user"])
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
	assert.Equal(t, 1, col.get("reconcile_balance/completed"))
}

func TestQueue_RetriesUntilSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store, WithBackoff(time.Millisecond))

	var attempts int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return nil, errors.New("transient")
		}
		return nil, nil
	}))
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeExportTransactions, UserID: "u1"}
	require.NoError(t, q.Publish(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	col := &jobCounter{}
	q := NewQueue(10, store, WithBackoff(time.Millisecond), WithMaxRetries(1), WithMetrics(col))

	var attempts int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("permanent")
	}))
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeReconcileBalance, UserID: "u1"}
	require.NoError(t, q.Publish(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, "permanent", failed.Error)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	assert.Equal(t, 1, col.get("reconcile_balance/retrying"))
	assert.Equal(t, 1, col.get("reconcile_balance/failed"))
}

func TestQueue_PanicFailsAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(1, store, WithMaxRetries(0))
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		panic("boom")
	}))
	defer q.Close()

	job := &jobs.Job{Type: jobs.JobTypeReconcileBalance, UserID: "u1", MaxRetries: 0}
	require.NoError(t, q.Publish(ctx, job))
	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "boom")
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	assert.ErrorIs(t, q.Publish(context.Background(), &jobs.Job{}), ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), ErrQueueClosed)
}

func TestQueue_PublishRespectsContext(t *testing.T) {
	q := NewQueue(0, nil)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, &jobs.Job{}), context.DeadlineExceeded)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.Error(t, s.SaveJob(ctx, &jobs.Job{}))
	for i, j := range []*jobs.Job{
		{JobID: "a", UserID: "u1", Type: jobs.JobTypeReconcileBalance, Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", UserID: "u1", Type: jobs.JobTypeExportTransactions, Status: jobs.JobStatusPending, CreatedAt: base.Add(time.Hour)},
		{JobID: "c", UserID: "u2", Type: jobs.JobTypeReconcileBalance, Status: jobs.JobStatusPending, CreatedAt: base.Add(2 * time.Hour)},
	} {
		require.NoError(t, s.SaveJob(ctx, j), i)
	}

	got, err := s.ListJobs(ctx, jobs.JobFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].JobID, "newest first")

	got, err = s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusPending, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].JobID)

	got, err = s.ListJobs(ctx, jobs.JobFilter{Type: jobs.JobTypeReconcileBalance, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.GetJob(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	assert.True(t, domain.IsNotFound(s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "")))

	require.NoError(t, s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "oops"))
	a, err := s.GetJob(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, a.Status)
	assert.Equal(t, "oops", a.Error)

	// Stored jobs are isolated from the caller's copy.
	a.Status = jobs.JobStatusRunning
	again, _ := s.GetJob(ctx, "a")
	assert.Equal(t, jobs.JobStatusFailed, again.Status)
}

func TestRouter(t *testing.T) {
	r := jobs.Router{
		jobs.JobTypeReconcileBalance: func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	}
	out, err := r.Handle(context.Background(), &jobs.Job{Type: jobs.JobTypeReconcileBalance})
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])

	_, err = r.Handle(context.Background(), &jobs.Job{Type: "nope"})
	var unknown *jobs.UnknownTypeError
	assert.ErrorAs(t, err, &unknown)
}
