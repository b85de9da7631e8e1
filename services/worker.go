package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"golang.org/x/sync/errgroup"
)

// JobProcessor performs the work of one claimed job.
type JobProcessor interface {
	Process(ctx context.Context, job *model.GenerationJob) error
}

// Worker runs N consumers that claim jobs from the queue and hand them to the
// processor.
type Worker struct {
	queue        *QueueService
	processor    JobProcessor
	log          *logger.Logger
	concurrency  int
	pollInterval time.Duration
}

func NewWorker(queue *QueueService, processor JobProcessor, log *logger.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:        queue,
		processor:    processor,
		log:          log,
		concurrency:  concurrency,
		pollInterval: time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		consumer := i + 1
		g.Go(func() error {
			w.consume(ctx, consumer)
			return nil
		})
	}
	w.log.Info("generation worker started", "consumers", w.concurrency)
	err := g.Wait()
	w.log.Info("generation worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, consumer int) {
	for {
		if ctx.Err() != nil {
			return
		}
		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Error("failed to claim job", "consumer", consumer, "error", err)
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx)
	if err != nil || job == nil {
		return false, err
	}

	log := w.log.With("job_id", job.ID, "course_id", job.CourseID, "action", job.Action, "attempt", job.Attempts)
	started := time.Now()
	procErr := w.safeProcess(ctx, job)

	// Acknowledge even when shutting down so the job is not left processing.
	ackCtx := context.WithoutCancel(ctx)
	if procErr != nil {
		if err := w.queue.Fail(ackCtx, job, procErr); err != nil {
			log.Error("failed to record job failure", "error", err)
		}
		return true, nil
	}
	if err := w.queue.Complete(ackCtx, job); err != nil {
		log.Error("failed to complete job", "error", err)
	}
	log.Info("job completed", "duration", time.Since(started).String())
	return true, nil
}

func (w *Worker) safeProcess(ctx context.Context, job *model.GenerationJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processor.Process(ctx, job)
}
