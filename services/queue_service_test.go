package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(1))
	assert.Equal(t, 4*time.Second, RetryDelay(2))
	assert.Equal(t, 8*time.Second, RetryDelay(3))
	assert.Equal(t, 2*time.Second, RetryDelay(0))
}

func TestClaimHonoursPriorityThenAge(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	low, err := q.Enqueue(ctx, 1, model.ActionGenerateModule, WithModule(2), WithPriority(PriorityLow))
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	first, err := q.Enqueue(ctx, 1, model.ActionGenerateMetadata)
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	second, err := q.Enqueue(ctx, 2, model.ActionGenerateMetadata)
	require.NoError(t, err)
	clock.Advance(time.Millisecond)
	high, err := q.Enqueue(ctx, 1, model.ActionGenerateModule, WithModule(1), WithPriority(PriorityHigh))
	require.NoError(t, err)

	var order []string
	for {
		job, err := q.Claim(ctx)
		require.NoError(t, err)
		if job == nil {
			break
		}
		assert.Equal(t, model.JobStatusProcessing, job.Status)
		assert.Equal(t, 1, job.Attempts)
		order = append(order, job.ID)
	}
	assert.Equal(t, []string{high.ID, first.ID, second.ID, low.ID}, order)
}

func TestEnqueueModuleJobNeedsNumber(t *testing.T) {
	q, _ := newTestQueue(t)
	_, err := q.Enqueue(context.Background(), 1, model.ActionGenerateModule)
	assert.Error(t, err)
}

func TestFailedJobIsRetriedWithBackoff(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	var terminal []*model.GenerationJob
	q.OnTerminalFailure(func(_ context.Context, job *model.GenerationJob, _ error) {
		terminal = append(terminal, job)
	})

	enqueued, err := q.Enqueue(ctx, 7, model.ActionGenerateMetadata)
	require.NoError(t, err)

	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		job, err := q.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", attempt)
		assert.Equal(t, attempt, job.Attempts)
		require.NoError(t, q.Fail(ctx, job, errors.New("model overloaded")))

		if attempt == DefaultMaxAttempts {
			break
		}
		state, err := q.GetJob(ctx, enqueued.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusDelayed, state.Status)

		clock.Advance(RetryDelay(attempt) - time.Millisecond)
		none, err := q.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, none, "job must wait %s", RetryDelay(attempt))
		clock.Advance(time.Millisecond)
	}

	state, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, state.Status)
	assert.Equal(t, "model overloaded", state.LastError)
	require.Len(t, terminal, 1)
	assert.Equal(t, enqueued.ID, terminal[0].ID)

	clock.Advance(time.Minute)
	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCompleteAndCourseJobs(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, 3, model.ActionGenerateMetadata)
	require.NoError(t, err)
	clock.Advance(time.Second)
	b, err := q.Enqueue(ctx, 3, model.ActionGenerateModule, WithModule(1))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 4, model.ActionGenerateMetadata)
	require.NoError(t, err)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, a.ID, job.ID)
	require.NoError(t, q.Complete(ctx, job))

	jobs, err := q.CourseJobs(ctx, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, a.ID, jobs[0].ID)
	assert.Equal(t, model.JobStatusCompleted, jobs[0].Status)
	assert.NotNil(t, jobs[0].FinishedAt)
	assert.Equal(t, b.ID, jobs[1].ID)
	assert.Equal(t, 1, jobs[1].ModuleNumber)

	_, err = q.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCancelCourseJobsDropsPendingWork(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	hookRan := false
	q.OnTerminalFailure(func(context.Context, *model.GenerationJob, error) { hookRan = true })

	_, err := q.Enqueue(ctx, 9, model.ActionGenerateModule, WithModule(2))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, 9, model.ActionGenerateModule, WithModule(3))
	require.NoError(t, err)
	other, err := q.Enqueue(ctx, 10, model.ActionGenerateMetadata)
	require.NoError(t, err)

	require.NoError(t, q.CancelCourseJobs(ctx, 9, "cancelled by user"))

	ready, delayed, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
	assert.Equal(t, int64(0), delayed)

	jobs, err := q.CourseJobs(ctx, 9)
	require.NoError(t, err)
	for _, j := range jobs {
		assert.Equal(t, model.JobStatusFailed, j.Status)
		assert.Equal(t, "cancelled by user", j.LastError)
	}
	assert.False(t, hookRan)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, other.ID, job.ID)
}

func TestExpiredLeaseCountsAsFailedAttempt(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, 5, model.ActionGenerateMetadata)
	require.NoError(t, err)

	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, enqueued.ID, job.ID)

	clock.Advance(JobLease - time.Second)
	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "lease still held")

	clock.Advance(time.Second)
	none, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "reclaimed job waits for its backoff")

	state, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDelayed, state.Status)
	assert.Equal(t, ErrLeaseExpired.Error(), state.LastError)

	clock.Advance(RetryDelay(1))
	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, enqueued.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
	require.NoError(t, q.Complete(ctx, again))

	clock.Advance(2 * JobLease)
	none, err = q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	state, err = q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, state.Status)
	claimed, err := q.rdb.ZCard(ctx, model.RedisKeyProcessingQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, claimed)
}

func TestExpiredLeaseOnLastAttemptRunsTerminalHook(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	var causes []error
	q.OnTerminalFailure(func(_ context.Context, _ *model.GenerationJob, cause error) {
		causes = append(causes, cause)
	})

	enqueued, err := q.Enqueue(ctx, 6, model.ActionGenerateModule, WithModule(1), WithMaxAttempts(1))
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	clock.Advance(JobLease)
	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.Len(t, causes, 1)
	assert.ErrorIs(t, causes[0], ErrLeaseExpired)
	state, err := q.GetJob(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, state.Status)
}

func TestDelayedJobSurvivesRedisErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	q, clock := newTestQueueOn(t, mr)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, 8, model.ActionGenerateMetadata)
	require.NoError(t, err)
	job, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job, errors.New("timeout")))

	claimed, err := q.rdb.ZCard(ctx, model.RedisKeyProcessingQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, claimed, "a retried job releases its lease")

	clock.Advance(RetryDelay(1))
	mr.SetError("LOADING Redis is loading the dataset in memory")
	_, err = q.Claim(ctx)
	require.Error(t, err)
	mr.SetError("")

	require.NoError(t, q.promoteDue(ctx))
	require.NoError(t, q.promoteDue(ctx))
	ready, delayed, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ready)
	assert.Equal(t, int64(0), delayed)

	again, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, enqueued.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestPromoteDropsJobsWhoseStateExpired(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.rdb.ZAdd(ctx, model.RedisKeyDelayedQueue, redis.Z{
		Score:  float64(clock.Now().UnixMilli()),
		Member: "gone",
	}).Err())

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	ready, delayed, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, ready)
	assert.Zero(t, delayed)
}
