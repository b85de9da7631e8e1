package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/contentstore"
	"github.com/NicoHurtado/cursia-sub002/services/generation"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/gorm"
)

// Enqueuer submits generation jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, courseID uint, action model.JobAction, opts ...EnqueueOption) (*model.GenerationJob, error)
}

// VideoFinder looks up a companion video for a module.
type VideoFinder interface {
	FindVideo(ctx context.Context, query string) (string, error)
}

// GenerationPipeline is the JobProcessor that builds courses:
// metadata -> METADATA_READY -> GENERATING_MODULE_1 -> module 1 -> READY ->
// remaining modules -> COMPLETE.
type GenerationPipeline struct {
	db        *gorm.DB
	queue     Enqueuer
	generator generation.Generator
	videos    VideoFinder
	store     contentstore.Store
	log       *logger.Logger
}

// NewGenerationPipeline wires the pipeline. videos may be nil.
func NewGenerationPipeline(db *gorm.DB, queue Enqueuer, generator generation.Generator, videos VideoFinder, store contentstore.Store, log *logger.Logger) *GenerationPipeline {
	return &GenerationPipeline{
		db:        db,
		queue:     queue,
		generator: generator,
		videos:    videos,
		store:     store,
		log:       log,
	}
}

// Process runs one job. Jobs of deleted or failed courses are dropped.
func (p *GenerationPipeline) Process(ctx context.Context, job *model.GenerationJob) error {
	var course model.Course
	err := p.db.WithContext(ctx).First(&course, job.CourseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.log.Info("skipping job for deleted course", "job_id", job.ID, "course_id", job.CourseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load course %d: %w", job.CourseID, err)
	}
	if course.Status == model.StatusFailed {
		p.log.Info("skipping job for failed course", "job_id", job.ID, "course_id", course.ID)
		return nil
	}

	switch job.Action {
	case model.ActionGenerateMetadata:
		return p.generateMetadata(ctx, &course)
	case model.ActionGenerateModule:
		return p.generateModule(ctx, &course, job.ModuleNumber)
	default:
		return fmt.Errorf("unknown job action %q", job.Action)
	}
}

func (p *GenerationPipeline) generateMetadata(ctx context.Context, course *model.Course) error {
	if course.Status != model.StatusGeneratingMetadata {
		return nil
	}

	var source string
	if p.store != nil {
		data, err := p.store.Get(ctx, contentstore.SourceKey(course.ID))
		switch {
		case err == nil:
			source = string(data)
		case !errors.Is(err, contentstore.ErrNotFound):
			return fmt.Errorf("read source document: %w", err)
		}
	}

	meta, err := p.generator.GenerateMetadata(ctx, course, source)
	if err != nil {
		return err
	}

	applied := false
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"title":         meta.Title,
			"description":   meta.Description,
			"total_modules": len(meta.Modules),
			"status":        model.StatusMetadataReady,
		}
		if course.Level == "" && meta.Level != "" {
			updates["level"] = meta.Level
		}
		res := tx.Model(&model.Course{}).
			Where("id = ? AND status = ?", course.ID, model.StatusGeneratingMetadata).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // cancelled meanwhile
		}

		modules := make([]model.Module, len(meta.Modules))
		for i, outline := range meta.Modules {
			modules[i] = model.Module{
				CourseID:    course.ID,
				ModuleOrder: i + 1,
				Title:       outline.Title,
				Description: outline.Description,
			}
		}
		if err := tx.Create(&modules).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("store metadata: %w", err)
	}
	if !applied {
		return nil
	}

	res := p.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND status = ?", course.ID, model.StatusMetadataReady).
		Update("status", model.StatusGeneratingModule1)
	if res.Error != nil {
		return fmt.Errorf("advance course status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	p.log.Info("course metadata generated", "course_id", course.ID, "modules", len(meta.Modules))
	_, err = p.queue.Enqueue(ctx, course.ID, model.ActionGenerateModule, WithModule(1), WithPriority(PriorityHigh))
	return err
}

func (p *GenerationPipeline) generateModule(ctx context.Context, course *model.Course, number int) error {
	if err := p.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("module_order ASC") }).
		First(course, course.ID).Error; err != nil {
		return fmt.Errorf("load modules: %w", err)
	}
	if number < 1 || number > len(course.Modules) {
		return fmt.Errorf("course %d has no module %d", course.ID, number)
	}
	module := course.Modules[number-1]

	var existing int64
	if err := p.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("module_id = ?", module.ID).
		Count(&existing).Error; err != nil {
		return err
	}

	if existing == 0 {
		content, err := p.generator.GenerateModule(ctx, course, number)
		if err != nil {
			return err
		}
		p.keepPayload(ctx, course.ID, number, content)
		videoID := p.findVideo(ctx, course, &module, content)

		stored, err := p.storeModule(ctx, course.ID, &module, content, videoID)
		if err != nil {
			return fmt.Errorf("store module %d: %w", number, err)
		}
		if !stored {
			return nil
		}
		p.log.Info("module generated", "course_id", course.ID, "module", number, "chunks", len(content.Chunks))
	}

	if number == 1 {
		if err := p.markReady(ctx, course); err != nil {
			return err
		}
	}
	return p.completeIfDone(ctx, course.ID)
}

// storeModule writes chunks and quiz unless the course was cancelled or
// deleted meanwhile. It reports whether anything was written.
func (p *GenerationPipeline) storeModule(ctx context.Context, courseID uint, module *model.Module, content *generation.ModuleContent, videoID string) (bool, error) {
	stored := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Model(&model.Course{}).
			Where("id = ? AND status <> ?", courseID, model.StatusFailed).
			Count(&live).Error; err != nil {
			return err
		}
		if live == 0 {
			return nil
		}

		chunks := make([]model.Chunk, len(content.Chunks))
		for i, c := range content.Chunks {
			chunks[i] = model.Chunk{ModuleID: module.ID, ChunkOrder: i + 1, Title: c.Title, Content: c.Content}
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return err
		}

		if content.Quiz != nil && len(content.Quiz.Questions) > 0 {
			quiz := model.Quiz{ModuleID: module.ID, Title: content.Quiz.Title}
			for i, q := range content.Quiz.Questions {
				quiz.Questions = append(quiz.Questions, model.QuizQuestion{
					QuestionOrder: i + 1,
					Question:      q.Question,
					Options:       q.Options,
					CorrectAnswer: q.CorrectAnswer,
					Explanation:   q.Explanation,
				})
			}
			if err := tx.Create(&quiz).Error; err != nil {
				return err
			}
		}

		if videoID != "" {
			if err := tx.Model(&model.Module{}).Where("id = ?", module.ID).Update("video_id", videoID).Error; err != nil {
				return err
			}
		}
		stored = true
		return nil
	})
	return stored, err
}

func (p *GenerationPipeline) keepPayload(ctx context.Context, courseID uint, number int, content *generation.ModuleContent) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(content)
	if err == nil {
		err = p.store.Put(ctx, contentstore.ModuleKey(courseID, number), data, "application/json")
	}
	if err != nil {
		p.log.Warn("failed to keep module payload", "course_id", courseID, "module", number, "error", err)
	}
}

func (p *GenerationPipeline) findVideo(ctx context.Context, course *model.Course, module *model.Module, content *generation.ModuleContent) string {
	if p.videos == nil {
		return ""
	}
	query := content.VideoQuery
	if query == "" {
		query = course.Title + " " + module.Title
	}
	id, err := p.videos.FindVideo(ctx, query)
	if err != nil {
		p.log.Warn("video lookup failed", "course_id", course.ID, "module", module.ModuleOrder, "error", err)
		return ""
	}
	return id
}

// markReady opens the course to learners and queues the remaining modules.
func (p *GenerationPipeline) markReady(ctx context.Context, course *model.Course) error {
	res := p.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND status = ?", course.ID, model.StatusGeneratingModule1).
		Update("status", model.StatusReady)
	if res.Error != nil {
		return fmt.Errorf("mark course ready: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	for n := 2; n <= len(course.Modules); n++ {
		if _, err := p.queue.Enqueue(ctx, course.ID, model.ActionGenerateModule, WithModule(n), WithPriority(PriorityLow)); err != nil {
			return err
		}
	}
	return nil
}

// completeIfDone moves a READY course to COMPLETE once every module has content.
func (p *GenerationPipeline) completeIfDone(ctx context.Context, courseID uint) error {
	var empty int64
	err := p.db.WithContext(ctx).Model(&model.Module{}).
		Where("course_id = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE chunks.module_id = modules.id)", courseID).
		Count(&empty).Error
	if err != nil {
		return err
	}
	if empty > 0 {
		return nil
	}
	res := p.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND status = ?", courseID, model.StatusReady).
		Update("status", model.StatusComplete)
	if res.Error == nil && res.RowsAffected > 0 {
		p.log.Info("course generation complete", "course_id", courseID)
	}
	return res.Error
}

// MarkCourseFailed returns the queue hook that fails a course whose job ran
// out of attempts. Completed courses are left alone.
func MarkCourseFailed(db *gorm.DB, log *logger.Logger) TerminalFailureFunc {
	return func(ctx context.Context, job *model.GenerationJob, cause error) {
		reason := fmt.Sprintf("%s failed after %d attempts: %v", job.Action, job.Attempts, cause)
		if job.Action == model.ActionGenerateModule {
			reason = fmt.Sprintf("module %d %s", job.ModuleNumber, reason)
		}
		err := db.WithContext(ctx).Model(&model.Course{}).
			Where("id = ? AND status <> ?", job.CourseID, model.StatusComplete).
			Updates(map[string]interface{}{
				"status":         model.StatusFailed,
				"failure_reason": reason,
			}).Error
		if err != nil {
			log.Error("failed to mark course failed", "course_id", job.CourseID, "error", err)
		}
	}
}
