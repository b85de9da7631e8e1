package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"gorm.io/gorm"
)

var statusProgress = map[model.CourseStatus]int{
	model.StatusGeneratingMetadata: 15,
	model.StatusMetadataReady:      30,
	model.StatusGeneratingModule1:  50,
	model.StatusReady:              85,
	model.StatusComplete:           100,
}

// CourseProgressPercentage maps a generation status to a 0-100 figure. Unknown
// statuses fall back to the share of modules with content, capped at 80 and
// floored at 10.
func CourseProgressPercentage(status model.CourseStatus, totalModules, modulesWithContent int) int {
	if p, ok := statusProgress[status]; ok {
		return p
	}
	if totalModules <= 0 {
		return 10
	}
	p := modulesWithContent * 80 / totalModules
	if p > 80 {
		p = 80
	}
	if p < 10 {
		p = 10
	}
	return p
}

// ModuleReadiness describes one module of a course being generated.
type ModuleReadiness struct {
	ModuleID    uint   `json:"moduleId"`
	ModuleOrder int    `json:"moduleOrder"`
	Title       string `json:"title"`
	HasContent  bool   `json:"hasContent"`
	ChunkCount  int    `json:"chunkCount"`
	HasQuiz     bool   `json:"hasQuiz"`
}

// CourseStatusReport is the short answer of the status endpoint.
type CourseStatusReport struct {
	CourseID           uint               `json:"courseId"`
	Status             model.CourseStatus `json:"status"`
	ProgressPercentage int                `json:"progressPercentage"`
	FailureReason      string             `json:"failureReason,omitempty"`
}

// GenerationStatus is the detailed answer of the generation-status endpoint.
type GenerationStatus struct {
	CourseStatusReport
	Title              string                `json:"title"`
	TotalModules       int                   `json:"totalModules"`
	ModulesWithContent int                   `json:"modulesWithContent"`
	IsFullyGenerated   bool                  `json:"isFullyGenerated"`
	Modules            []ModuleReadiness     `json:"modules"`
	Jobs               []model.GenerationJob `json:"jobs"`
}

// JobLister is the part of the queue the status report reads.
type JobLister interface {
	CourseJobs(ctx context.Context, courseID uint) ([]model.GenerationJob, error)
}

// CourseStatusService computes generation progress for polling clients.
type CourseStatusService struct {
	db   *gorm.DB
	jobs JobLister
}

// NewCourseStatusService creates the service. jobs may be nil when no queue
// is configured.
func NewCourseStatusService(db *gorm.DB, jobs JobLister) *CourseStatusService {
	return &CourseStatusService{db: db, jobs: jobs}
}

type moduleStats struct {
	ID          uint
	ModuleOrder int
	Title       string
	ChunkCount  int
	QuizCount   int
}

func (s *CourseStatusService) moduleStats(ctx context.Context, courseID uint) ([]moduleStats, error) {
	var stats []moduleStats
	err := s.db.WithContext(ctx).
		Table("modules").
		Select(`modules.id, modules.module_order, modules.title,
			(SELECT COUNT(*) FROM chunks WHERE chunks.module_id = modules.id) AS chunk_count,
			(SELECT COUNT(*) FROM quizzes WHERE quizzes.module_id = modules.id) AS quiz_count`).
		Where("modules.course_id = ?", courseID).
		Order("modules.module_order ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, apperror.Internal("failed to load modules", err)
	}
	return stats, nil
}

// Status returns the progress percentage of a course the user can see.
func (s *CourseStatusService) Status(ctx context.Context, userID, courseID uint) (*CourseStatusReport, error) {
	course, err := findVisibleCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	stats, err := s.moduleStats(ctx, courseID)
	if err != nil {
		return nil, err
	}
	report := buildReport(course, stats)
	return &report.CourseStatusReport, nil
}

// GenerationStatus returns the per-module readiness and queue jobs.
func (s *CourseStatusService) GenerationStatus(ctx context.Context, userID, courseID uint) (*GenerationStatus, error) {
	course, err := findVisibleCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	stats, err := s.moduleStats(ctx, courseID)
	if err != nil {
		return nil, err
	}
	report := buildReport(course, stats)

	report.Jobs = []model.GenerationJob{}
	if s.jobs != nil && course.UserID == userID {
		jobs, err := s.jobs.CourseJobs(ctx, courseID)
		if err != nil {
			return nil, apperror.Internal("failed to load generation jobs", err)
		}
		report.Jobs = jobs
	}
	return report, nil
}

func buildReport(course *model.Course, stats []moduleStats) *GenerationStatus {
	report := &GenerationStatus{
		CourseStatusReport: CourseStatusReport{
			CourseID:      course.ID,
			Status:        course.Status,
			FailureReason: course.FailureReason,
		},
		Title:        course.Title,
		TotalModules: course.TotalModules,
		Modules:      make([]ModuleReadiness, 0, len(stats)),
	}
	for _, m := range stats {
		r := ModuleReadiness{
			ModuleID:    m.ID,
			ModuleOrder: m.ModuleOrder,
			Title:       m.Title,
			HasContent:  m.ChunkCount > 0,
			ChunkCount:  m.ChunkCount,
			HasQuiz:     m.QuizCount > 0,
		}
		if r.HasContent {
			report.ModulesWithContent++
		}
		report.Modules = append(report.Modules, r)
	}
	if report.TotalModules == 0 {
		report.TotalModules = len(stats)
	}

	report.ProgressPercentage = CourseProgressPercentage(course.Status, report.TotalModules, report.ModulesWithContent)
	report.IsFullyGenerated = course.Status != model.StatusFailed &&
		len(stats) > 0 &&
		report.ModulesWithContent == len(stats)
	return report
}

// findVisibleCourse loads a non-deleted course owned by the user or public.
func findVisibleCourse(ctx context.Context, db *gorm.DB, userID, courseID uint) (*model.Course, error) {
	var course model.Course
	err := db.WithContext(ctx).
		Where("id = ? AND (user_id = ? OR is_public = ?)", courseID, userID, true).
		First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("course not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load course", err)
	}
	return &course, nil
}

// findOwnedCourse loads a non-deleted course owned by the user.
func findOwnedCourse(ctx context.Context, db *gorm.DB, userID, courseID uint) (*model.Course, error) {
	var course model.Course
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", courseID, userID).
		First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("course not found")
	}
	if err != nil {
		return nil, apperror.Internal(fmt.Sprintf("failed to load course %d", courseID), err)
	}
	return &course, nil
}
