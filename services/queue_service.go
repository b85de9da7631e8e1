package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TTL configurations for job states
const (
	JobStateTTLSuccess = 1 * time.Hour  // 1 hour for successful jobs
	JobStateTTLFailure = 24 * time.Hour // 24 hours for failed jobs
	JobStateTTLPending = 24 * time.Hour // 24 hours for pending/processing jobs

	DefaultMaxAttempts = 3
	BaseRetryDelay     = 2 * time.Second

	// JobLease is how long a claimed job may stay unacknowledged before it
	// counts as a failed attempt.
	JobLease = 30 * time.Minute

	PriorityHigh   = 1
	PriorityNormal = 5
	PriorityLow    = 10
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrLeaseExpired = errors.New("job lease expired before it was acknowledged")
)

// claimScript pops the lowest scored ready id into the processing set.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[1], ids[1])
return ids[1]
`)

// moveScript moves a member between sorted sets. It returns 0 when the member
// was no longer in the source set.
var moveScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

// takeScript removes a member from a sorted set only while its score is at
// most ARGV[2].
var takeScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

// RetryDelay returns the wait before retry number attempt (1-based): 2s, 4s, 8s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseRetryDelay << (attempt - 1)
}

// TerminalFailureFunc is called once when a job exhausts its attempts.
type TerminalFailureFunc func(ctx context.Context, job *model.GenerationJob, cause error)

// QueueService is a Redis backed priority queue of course generation jobs.
// Job state lives in a JSON key, runnable ids in a sorted set scored by
// priority, delayed retries in a sorted set scored by run time and claimed
// jobs in a sorted set scored by claim time.
type QueueService struct {
	cache      *cache.RedisCache
	rdb        *redis.Client
	log        *logger.Logger
	onTerminal TerminalFailureFunc
	now        func() time.Time
}

func NewQueueService(redisCache *cache.RedisCache, log *logger.Logger) *QueueService {
	return &QueueService{
		cache: redisCache,
		rdb:   redisCache.Client(),
		log:   log,
		now:   time.Now,
	}
}

// OnTerminalFailure registers the hook run when a job fails for good.
func (q *QueueService) OnTerminalFailure(fn TerminalFailureFunc) {
	q.onTerminal = fn
}

// EnqueueOption customizes a job.
type EnqueueOption func(*model.GenerationJob)

// WithModule sets the module number of a generate-module job.
func WithModule(n int) EnqueueOption {
	return func(j *model.GenerationJob) { j.ModuleNumber = n }
}

// WithPriority overrides the default priority. Lower runs first.
func WithPriority(p int) EnqueueOption {
	return func(j *model.GenerationJob) { j.Priority = p }
}

// WithMaxAttempts overrides the attempt budget.
func WithMaxAttempts(n int) EnqueueOption {
	return func(j *model.GenerationJob) { j.MaxAttempts = n }
}

func jobKey(id string) string { return fmt.Sprintf(model.RedisKeyJobState, id) }

func courseJobsKey(courseID uint) string { return fmt.Sprintf(model.RedisKeyCourseJobs, courseID) }

// readyScore orders by priority and then by enqueue time.
func readyScore(job *model.GenerationJob) float64 {
	return float64(job.Priority)*1e13 + float64(job.CreatedAt.UnixMilli())
}

func stateTTL(status model.JobStatus) time.Duration {
	switch status {
	case model.JobStatusCompleted:
		return JobStateTTLSuccess
	case model.JobStatusFailed:
		return JobStateTTLFailure
	default:
		return JobStateTTLPending
	}
}

func (q *QueueService) save(ctx context.Context, job *model.GenerationJob) error {
	job.UpdatedAt = q.now()
	return q.cache.SetJSON(ctx, jobKey(job.ID), job, stateTTL(job.Status))
}

// Enqueue submits a job for a course.
func (q *QueueService) Enqueue(ctx context.Context, courseID uint, action model.JobAction, opts ...EnqueueOption) (*model.GenerationJob, error) {
	now := q.now()
	job := &model.GenerationJob{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		Action:      action,
		Priority:    PriorityNormal,
		Status:      model.JobStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
	}
	for _, opt := range opts {
		opt(job)
	}
	if action == model.ActionGenerateModule && job.ModuleNumber < 1 {
		return nil, fmt.Errorf("generate-module job for course %d needs a module number", courseID)
	}

	if err := q.save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.SAdd(ctx, courseJobsKey(courseID), job.ID)
	pipe.Expire(ctx, courseJobsKey(courseID), JobStateTTLFailure)
	pipe.ZAdd(ctx, model.RedisKeyReadyQueue, redis.Z{Score: readyScore(job), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		_ = q.cache.Delete(ctx, jobKey(job.ID))
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.log.Info("job enqueued",
		"job_id", job.ID,
		"course_id", courseID,
		"action", action,
		"module", job.ModuleNumber,
		"priority", job.Priority,
	)
	return job, nil
}

// GetJob returns the state of a job.
func (q *QueueService) GetJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	if err := q.cache.GetJSON(ctx, jobKey(jobID), &job); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// CourseJobs returns the known jobs of a course, oldest first.
func (q *QueueService) CourseJobs(ctx context.Context, courseID uint) ([]model.GenerationJob, error) {
	ids, err := q.rdb.SMembers(ctx, courseJobsKey(courseID)).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]model.GenerationJob, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// promoteDue moves delayed jobs whose run time has passed to the ready set.
func (q *QueueService) promoteDue(ctx context.Context) error {
	due, err := q.rdb.ZRangeByScore(ctx, model.RedisKeyDelayedQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range due {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			if err := q.rdb.ZRem(ctx, model.RedisKeyDelayedQueue, id).Err(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		moved, err := moveScript.Run(ctx, q.rdb,
			[]string{model.RedisKeyDelayedQueue, model.RedisKeyReadyQueue},
			id, readyScore(job),
		).Int()
		if err != nil {
			return err
		}
		if moved == 0 {
			continue // another worker promoted it
		}
		job.Status = model.JobStatusPending
		job.RunAt = nil
		if err := q.save(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// reclaimStale fails the jobs whose lease ran out, so they are retried or
// marked failed like any other failed run.
func (q *QueueService) reclaimStale(ctx context.Context) error {
	cutoff := q.now().Add(-JobLease).UnixMilli()
	stale, err := q.rdb.ZRangeByScoreWithScores(ctx, model.RedisKeyProcessingQueue, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, z := range stale {
		id, _ := z.Member.(string)
		taken, err := takeScript.Run(ctx, q.rdb, []string{model.RedisKeyProcessingQueue}, id, cutoff).Int()
		if err != nil {
			return err
		}
		if taken == 0 {
			continue
		}
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			q.restoreLease(ctx, z)
			return err
		}
		if job.Status != model.JobStatusProcessing {
			continue
		}
		q.log.Warn("job lease expired",
			"job_id", job.ID,
			"course_id", job.CourseID,
			"attempt", job.Attempts,
		)
		if err := q.Fail(ctx, job, ErrLeaseExpired); err != nil {
			q.restoreLease(ctx, z)
			return err
		}
	}
	return nil
}

func (q *QueueService) restoreLease(ctx context.Context, z redis.Z) {
	if err := q.rdb.ZAdd(ctx, model.RedisKeyProcessingQueue, z).Err(); err != nil {
		q.log.Error("failed to restore job lease", "job_id", z.Member, "error", err)
	}
}

// Claim takes the next runnable job and marks it processing. It returns nil
// when nothing is runnable. A claimed job must be acknowledged with Complete
// or Fail within JobLease.
func (q *QueueService) Claim(ctx context.Context) (*model.GenerationJob, error) {
	if err := q.reclaimStale(ctx); err != nil {
		return nil, fmt.Errorf("failed to reclaim expired jobs: %w", err)
	}
	if err := q.promoteDue(ctx); err != nil {
		return nil, fmt.Errorf("failed to promote delayed jobs: %w", err)
	}

	for {
		id, err := claimScript.Run(ctx, q.rdb,
			[]string{model.RedisKeyReadyQueue, model.RedisKeyProcessingQueue},
			q.now().UnixMilli(),
		).Text()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) || (err == nil && job.Terminal()) {
			// state expired or the job was cancelled, drop the id
			if err := q.rdb.ZRem(ctx, model.RedisKeyProcessingQueue, id).Err(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		job.Status = model.JobStatusProcessing
		job.Attempts++
		if err := q.save(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
}

// Complete marks a claimed job as done.
func (q *QueueService) Complete(ctx context.Context, job *model.GenerationJob) error {
	now := q.now()
	job.Status = model.JobStatusCompleted
	job.FinishedAt = &now
	job.LastError = ""
	if err := q.save(ctx, job); err != nil {
		return err
	}
	return q.rdb.ZRem(ctx, model.RedisKeyProcessingQueue, job.ID).Err()
}

// Fail records a failed run. The job is retried with backoff until it runs out
// of attempts, then it is marked failed and the terminal hook runs.
func (q *QueueService) Fail(ctx context.Context, job *model.GenerationJob, cause error) error {
	job.LastError = cause.Error()

	if job.Attempts < job.MaxAttempts {
		runAt := q.now().Add(RetryDelay(job.Attempts))
		job.Status = model.JobStatusDelayed
		job.RunAt = &runAt
		if err := q.save(ctx, job); err != nil {
			return err
		}
		q.log.Warn("job failed, retrying",
			"job_id", job.ID,
			"course_id", job.CourseID,
			"attempt", job.Attempts,
			"retry_in", RetryDelay(job.Attempts).String(),
			"error", cause,
		)
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, model.RedisKeyProcessingQueue, job.ID)
		pipe.ZAdd(ctx, model.RedisKeyDelayedQueue, redis.Z{
			Score:  float64(runAt.UnixMilli()),
			Member: job.ID,
		})
		_, err := pipe.Exec(ctx)
		return err
	}

	now := q.now()
	job.Status = model.JobStatusFailed
	job.FinishedAt = &now
	job.RunAt = nil
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.ZRem(ctx, model.RedisKeyProcessingQueue, job.ID).Err(); err != nil {
		q.log.Warn("failed to release job lease", "job_id", job.ID, "error", err)
	}
	q.log.Error("job failed permanently",
		"job_id", job.ID,
		"course_id", job.CourseID,
		"attempts", job.Attempts,
		"error", cause,
	)
	if q.onTerminal != nil {
		q.onTerminal(ctx, job, cause)
	}
	return nil
}

// CancelCourseJobs drops the pending and delayed jobs of a course. The
// terminal hook does not run for them.
func (q *QueueService) CancelCourseJobs(ctx context.Context, courseID uint, reason string) error {
	jobs, err := q.CourseJobs(ctx, courseID)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := &jobs[i]
		if job.Status != model.JobStatusPending && job.Status != model.JobStatusDelayed {
			continue
		}
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, model.RedisKeyReadyQueue, job.ID)
		pipe.ZRem(ctx, model.RedisKeyDelayedQueue, job.ID)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		now := q.now()
		job.Status = model.JobStatusFailed
		job.LastError = reason
		job.FinishedAt = &now
		if err := q.save(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns the number of ready and delayed jobs.
func (q *QueueService) Stats(ctx context.Context) (ready, delayed int64, err error) {
	ready, err = q.rdb.ZCard(ctx, model.RedisKeyReadyQueue).Result()
	if err != nil {
		return 0, 0, err
	}
	delayed, err = q.rdb.ZCard(ctx, model.RedisKeyDelayedQueue).Result()
	return ready, delayed, err
}
