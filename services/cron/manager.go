package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job is one scheduled task. Run returns a short summary for the job log.
type Job struct {
	Name     string
	Schedule string // six fields, seconds first
	Timeout  time.Duration
	Run      func(ctx context.Context) (string, error)
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron  *cron.Cron
	db    *gorm.DB
	locks *cache.RedisCache
	log   *logger.Logger
	jobs  []Job
}

// NewCronManager creates a new cron manager. When locks is set a job runs on
// one instance at a time.
func NewCronManager(db *gorm.DB, locks *cache.RedisCache, log *logger.Logger) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:  c,
		db:    db,
		locks: locks,
		log:   log.With("component", "cron"),
	}
}

// Register adds jobs to the schedule. Call before Start.
func (m *CronManager) Register(jobs ...Job) {
	m.jobs = append(m.jobs, jobs...)
}

// Jobs returns the registered jobs.
func (m *CronManager) Jobs() []Job {
	return m.jobs
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	m.log.Info("starting cron jobs")

	for _, job := range m.jobs {
		job := job
		if _, err := m.cron.AddFunc(job.Schedule, func() {
			_ = m.RunJob(context.Background(), job)
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	m.cron.Start()
	m.log.Info("cron jobs started", "jobs", len(m.jobs))
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	m.log.Info("stopping cron jobs")
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.log.Info("cron jobs stopped")
}

func lockKey(name string) string { return "cursia:cron:lock:" + name }

// RunJob runs a job now, records it in cron_job_logs and returns its error.
// A job already running elsewhere is skipped.
func (m *CronManager) RunJob(ctx context.Context, job Job) error {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := m.log.With("job", job.Name)
	if m.locks != nil {
		acquired, err := m.locks.SetNX(ctx, lockKey(job.Name), time.Now().Unix(), timeout)
		if err != nil {
			log.Warn("cron lock unavailable, running anyway", "error", err)
		} else if !acquired {
			log.Info("job already running on another instance, skipping")
			return nil
		} else {
			defer func() { _ = m.locks.Delete(context.WithoutCancel(ctx), lockKey(job.Name)) }()
		}
	}

	entry := m.logJobStart(job.Name)
	log.Info("job started")

	message, err := job.Run(ctx)
	if err != nil {
		log.Error("job failed", "error", err)
		m.logJobError(entry, err)
		return err
	}
	log.Info("job completed", "message", message)
	m.logJobComplete(entry, message)
	return nil
}

// logJobStart writes the running row of a job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronStatusRunning,
		StartedAt: time.Now(),
		Metadata:  datatypes.JSON("{}"),
	}
	if err := m.db.Create(entry).Error; err != nil {
		m.log.Warn("failed to write cron job log", "job", jobName, "error", err)
	}
	return entry
}

func (m *CronManager) finish(entry *model.CronJobLog, updates map[string]interface{}) {
	if entry.ID == 0 {
		return
	}
	now := time.Now()
	updates["completed_at"] = now
	updates["duration"] = now.Sub(entry.StartedAt).Milliseconds()
	if err := m.db.Model(entry).Updates(updates).Error; err != nil {
		m.log.Warn("failed to update cron job log", "job", entry.JobName, "error", err)
	}
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string) {
	m.finish(entry, map[string]interface{}{
		"status":  model.CronStatusCompleted,
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	meta, _ := json.Marshal(map[string]string{"error": err.Error()})
	m.finish(entry, map[string]interface{}{
		"status":    model.CronStatusFailed,
		"error_msg": err.Error(),
		"metadata":  datatypes.JSON(meta),
	})
}
