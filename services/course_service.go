package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services/contentstore"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"gorm.io/gorm"
)

// CourseQueue is the part of the job queue the course lifecycle drives.
type CourseQueue interface {
	Enqueue(ctx context.Context, courseID uint, action model.JobAction, opts ...EnqueueOption) (*model.GenerationJob, error)
	CancelCourseJobs(ctx context.Context, courseID uint, reason string) error
}

// CourseService owns creation, listing and the trash lifecycle of courses.
type CourseService struct {
	db    *gorm.DB
	queue CourseQueue
	store contentstore.Store
	log   *logger.Logger
	now   func() time.Time
}

func NewCourseService(db *gorm.DB, queue CourseQueue, store contentstore.Store, log *logger.Logger) *CourseService {
	return &CourseService{db: db, queue: queue, store: store, log: log, now: time.Now}
}

type CreateCourseInput struct {
	Prompt         string
	Level          string
	SourceDocument string
}

// ListQuery pages through a course listing.
type ListQuery struct {
	Page  int
	Limit int
}

func (q ListQuery) normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return q
}

func (q ListQuery) offset() int { return (q.Page - 1) * q.Limit }

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CoursesThisMonth counts the courses a user created in the current calendar
// month, including deleted ones.
func (s *CourseService) CoursesThisMonth(ctx context.Context, userID uint) (int64, error) {
	return countCoursesSince(ctx, s.db, userID, startOfMonth(s.now()))
}

func countCoursesSince(ctx context.Context, db *gorm.DB, userID uint, since time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Unscoped().Model(&model.Course{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

// Create stores a new course and queues its metadata generation.
func (s *CourseService) Create(ctx context.Context, user *model.User, in CreateCourseInput) (*model.Course, error) {
	limit := PlanDetails(user.Plan).MonthlyCourses
	if limit != Unlimited {
		used, err := s.CoursesThisMonth(ctx, user.ID)
		if err != nil {
			return nil, apperror.Internal("failed to check course quota", err)
		}
		if used >= int64(limit) {
			return nil, apperror.Forbidden(fmt.Sprintf("monthly course limit of %d reached for plan %s", limit, user.Plan))
		}
	}

	course := &model.Course{
		UserID: user.ID,
		Prompt: in.Prompt,
		Title:  in.Prompt,
		Level:  in.Level,
		Status: model.StatusGeneratingMetadata,
	}
	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		return nil, apperror.Internal("failed to create course", err)
	}

	if in.SourceDocument != "" && s.store != nil {
		err := s.store.Put(ctx, contentstore.SourceKey(course.ID), []byte(in.SourceDocument), "text/plain; charset=utf-8")
		if err != nil {
			s.fail(ctx, course.ID, "source document could not be stored")
			return nil, apperror.Internal("failed to store source document", err)
		}
	}

	if _, err := s.queue.Enqueue(ctx, course.ID, model.ActionGenerateMetadata); err != nil {
		s.fail(ctx, course.ID, "generation could not be queued")
		return nil, apperror.Internal("failed to queue course generation", err)
	}

	s.log.Info("course created", "course_id", course.ID, "user_id", user.ID, "plan", user.Plan)
	return course, nil
}

func (s *CourseService) fail(ctx context.Context, courseID uint, reason string) {
	err := s.db.WithContext(ctx).Model(&model.Course{}).Where("id = ?", courseID).
		Updates(map[string]interface{}{"status": model.StatusFailed, "failure_reason": reason}).Error
	if err != nil {
		s.log.Error("failed to mark course failed", "course_id", courseID, "error", err)
	}
}

// List returns the caller's non-deleted courses, newest first.
func (s *CourseService) List(ctx context.Context, userID uint, q ListQuery) ([]model.Course, int64, error) {
	q = q.normalize()
	base := s.db.WithContext(ctx).Model(&model.Course{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, apperror.Internal("failed to count courses", err)
	}
	courses := []model.Course{}
	if err := base.Order("created_at DESC, id DESC").Limit(q.Limit).Offset(q.offset()).Find(&courses).Error; err != nil {
		return nil, 0, apperror.Internal("failed to list courses", err)
	}
	return courses, total, nil
}

// Trash returns the caller's soft-deleted courses.
func (s *CourseService) Trash(ctx context.Context, userID uint) ([]model.Course, error) {
	courses := []model.Course{}
	err := s.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND deleted_at IS NOT NULL", userID).
		Order("deleted_at DESC").
		Find(&courses).Error
	if err != nil {
		return nil, apperror.Internal("failed to list trash", err)
	}
	return courses, nil
}

// Get returns a visible course with its modules, chunks and quizzes.
func (s *CourseService) Get(ctx context.Context, userID, courseID uint) (*model.Course, error) {
	if _, err := findVisibleCourse(ctx, s.db, userID, courseID); err != nil {
		return nil, err
	}
	var course model.Course
	err := s.db.WithContext(ctx).
		Preload("Modules", func(db *gorm.DB) *gorm.DB { return db.Order("module_order ASC") }).
		Preload("Modules.Chunks", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_order ASC") }).
		Preload("Modules.Quiz.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_order ASC") }).
		First(&course, courseID).Error
	if err != nil {
		return nil, apperror.Internal("failed to load course", err)
	}
	return &course, nil
}

// Cancel stops a course that is still being generated. The course ends in
// FAILED and its queued jobs are dropped.
func (s *CourseService) Cancel(ctx context.Context, userID, courseID uint) (*model.Course, error) {
	course, err := findOwnedCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Status.InProgress() {
		return nil, apperror.Validation("only courses being generated can be cancelled")
	}

	res := s.db.WithContext(ctx).Model(&model.Course{}).
		Where("id = ? AND status IN ?", courseID, []model.CourseStatus{
			model.StatusGeneratingMetadata, model.StatusMetadataReady, model.StatusGeneratingModule1,
		}).
		Updates(map[string]interface{}{"status": model.StatusFailed, "failure_reason": "cancelled by user"})
	if res.Error != nil {
		return nil, apperror.Internal("failed to cancel course", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperror.Validation("only courses being generated can be cancelled")
	}
	if err := s.queue.CancelCourseJobs(ctx, courseID, "cancelled by user"); err != nil {
		s.log.Warn("failed to drop queued jobs", "course_id", courseID, "error", err)
	}

	course.Status = model.StatusFailed
	course.FailureReason = "cancelled by user"
	return course, nil
}

// SoftDelete moves a course to the trash and removes it from the community.
func (s *CourseService) SoftDelete(ctx context.Context, userID, courseID uint) error {
	course, err := findOwnedCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(course).Updates(map[string]interface{}{
			"is_public":    false,
			"published_at": nil,
		}).Error; err != nil {
			return err
		}
		return tx.Delete(course).Error
	})
	if err != nil {
		return apperror.Internal("failed to delete course", err)
	}
	if course.Status.InProgress() || course.Status == model.StatusReady {
		// Restore queues the remaining work again.
		if err := s.queue.CancelCourseJobs(ctx, course.ID, "course deleted"); err != nil {
			s.log.Warn("failed to drop queued jobs", "course_id", course.ID, "error", err)
		}
	}
	return nil
}

func (s *CourseService) findTrashed(ctx context.Context, userID, courseID uint) (*model.Course, error) {
	var course model.Course
	err := s.db.WithContext(ctx).Unscoped().
		Where("id = ? AND user_id = ?", courseID, userID).
		First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("course not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load course", err)
	}
	return &course, nil
}

// Restore takes a course out of the trash.
func (s *CourseService) Restore(ctx context.Context, userID, courseID uint) (*model.Course, error) {
	course, err := s.findTrashed(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !course.DeletedAt.Valid {
		return nil, apperror.NotFound("course not found in trash")
	}
	if err := s.db.WithContext(ctx).Unscoped().Model(course).Update("deleted_at", nil).Error; err != nil {
		return nil, apperror.Internal("failed to restore course", err)
	}
	course.DeletedAt = gorm.DeletedAt{}

	if err := s.resumeGeneration(ctx, course); err != nil {
		s.fail(ctx, course.ID, "generation could not be resumed")
		return nil, apperror.Internal("failed to resume course generation", err)
	}
	return course, nil
}

// resumeGeneration queues the jobs a restored course still needs. Queued jobs
// are dropped when a course is trashed.
func (s *CourseService) resumeGeneration(ctx context.Context, course *model.Course) error {
	db := s.db.WithContext(ctx)
	switch course.Status {
	case model.StatusGeneratingMetadata:
		_, err := s.queue.Enqueue(ctx, course.ID, model.ActionGenerateMetadata)
		return err

	case model.StatusMetadataReady, model.StatusGeneratingModule1:
		if course.Status == model.StatusMetadataReady {
			if err := db.Model(&model.Course{}).Where("id = ?", course.ID).
				Update("status", model.StatusGeneratingModule1).Error; err != nil {
				return err
			}
			course.Status = model.StatusGeneratingModule1
		}
		_, err := s.queue.Enqueue(ctx, course.ID, model.ActionGenerateModule, WithModule(1), WithPriority(PriorityHigh))
		return err

	case model.StatusReady:
		var pending []int
		err := db.Model(&model.Module{}).
			Where("course_id = ? AND NOT EXISTS (SELECT 1 FROM chunks WHERE chunks.module_id = modules.id)", course.ID).
			Order("module_order ASC").
			Pluck("module_order", &pending).Error
		if err != nil {
			return err
		}
		for _, n := range pending {
			if _, err := s.queue.Enqueue(ctx, course.ID, model.ActionGenerateModule, WithModule(n), WithPriority(PriorityLow)); err != nil {
				return err
			}
		}
		if len(pending) > 0 {
			s.log.Info("course generation resumed", "course_id", course.ID, "modules", len(pending))
		}
	}
	return nil
}

// PermanentDelete removes a trashed course with every child row and its
// stored documents. Issued certificates are kept.
func (s *CourseService) PermanentDelete(ctx context.Context, userID, courseID uint) error {
	course, err := s.findTrashed(ctx, userID, courseID)
	if err != nil {
		return err
	}
	if !course.DeletedAt.Valid {
		return apperror.Validation("course must be in the trash before it can be deleted permanently")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		progressIDs := tx.Model(&model.UserProgress{}).Select("id").Where("course_id = ?", courseID)
		moduleIDs := tx.Model(&model.Module{}).Select("id").Where("course_id = ?", courseID)
		quizIDs := tx.Model(&model.Quiz{}).Select("id").Where("module_id IN (?)", moduleIDs)

		steps := []struct {
			table interface{}
			query string
			arg   interface{}
		}{
			{&model.QuizAttempt{}, "progress_id IN (?)", progressIDs},
			{&model.CompletedChunk{}, "progress_id IN (?)", progressIDs},
			{&model.CompletedModule{}, "progress_id IN (?)", progressIDs},
			{&model.UserProgress{}, "course_id = ?", courseID},
			{&model.QuizQuestion{}, "quiz_id IN (?)", quizIDs},
			{&model.Quiz{}, "module_id IN (?)", moduleIDs},
			{&model.Chunk{}, "module_id IN (?)", moduleIDs},
			{&model.Module{}, "course_id = ?", courseID},
			{&model.CourseRating{}, "course_id = ?", courseID},
		}
		for _, step := range steps {
			if err := tx.Where(step.query, step.arg).Delete(step.table).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&model.Course{}, courseID).Error
	})
	if err != nil {
		return apperror.Internal("failed to delete course permanently", err)
	}

	if s.store != nil {
		if err := s.store.DeletePrefix(ctx, contentstore.CoursePrefix(courseID)); err != nil {
			s.log.Warn("failed to delete course documents", "course_id", courseID, "error", err)
		}
	}
	if err := s.queue.CancelCourseJobs(ctx, courseID, "course deleted"); err != nil {
		s.log.Warn("failed to drop queued jobs", "course_id", courseID, "error", err)
	}
	s.log.Info("course permanently deleted", "course_id", courseID, "user_id", userID)
	return nil
}
