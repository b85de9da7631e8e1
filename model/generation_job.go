package model

import "time"

// JobAction names the unit of generation work a job performs
type JobAction string

const (
	ActionGenerateMetadata JobAction = "generate-metadata"
	ActionGenerateModule   JobAction = "generate-module"
)

// JobStatus represents the status of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusDelayed    JobStatus = "delayed"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// GenerationJob is the state of a course generation job stored in Redis
type GenerationJob struct {
	ID           string    `json:"id"`
	CourseID     uint      `json:"courseId"`
	Action       JobAction `json:"action"`
	ModuleNumber int       `json:"moduleNumber,omitempty"`
	Priority     int       `json:"priority"` // lower runs first
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	MaxAttempts  int       `json:"maxAttempts"`
	LastError    string    `json:"lastError,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	RunAt      *time.Time `json:"runAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Terminal reports whether the job will not run again.
func (j *GenerationJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Redis key patterns for generation jobs
const (
	// RedisKeyJobState stores the full job state as JSON
	// Usage: fmt.Sprintf(RedisKeyJobState, jobID)
	RedisKeyJobState = "cursia:job:state:%s"

	// RedisKeyReadyQueue is a sorted set of runnable job ids scored by priority
	RedisKeyReadyQueue = "cursia:jobs:ready"

	// RedisKeyDelayedQueue is a sorted set of job ids scored by unix millis of next run
	RedisKeyDelayedQueue = "cursia:jobs:delayed"

	// RedisKeyProcessingQueue is a sorted set of claimed job ids scored by unix millis of the claim
	RedisKeyProcessingQueue = "cursia:jobs:processing"

	// RedisKeyCourseJobs indexes job ids per course
	// Usage: fmt.Sprintf(RedisKeyCourseJobs, courseID)
	RedisKeyCourseJobs = "cursia:jobs:course:%d"
)
