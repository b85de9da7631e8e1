package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PassingScore is the minimum quiz score that completes a module.
const PassingScore = 50

// ScoreQuiz compares answers positionally with the correct answers and
// returns the correct count, the rounded percentage score and whether it passes.
func ScoreQuiz(questions []model.QuizQuestion, answers []int) (correct, score int, passed bool) {
	if len(questions) == 0 {
		return 0, 0, false
	}
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	score = int(math.Round(float64(correct) / float64(len(questions)) * 100))
	return correct, score, score >= PassingScore
}

// ProgressService records learner progress through a course.
type ProgressService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewProgressService(db *gorm.DB) *ProgressService {
	return &ProgressService{db: db, now: time.Now}
}

// ProgressView is a progress record with derived completion figures.
type ProgressView struct {
	*model.UserProgress
	TotalChunks          int  `json:"totalChunks"`
	CompletedChunkCount  int  `json:"completedChunkCount"`
	ChunkPercentage      int  `json:"chunkPercentage"`
	TotalModules         int  `json:"totalModules"`
	CompletedModuleCount int  `json:"completedModuleCount"`
	ModulePercentage     int  `json:"modulePercentage"`
	IsCompleted          bool `json:"isCompleted"`
}

// QuizAttemptResult is returned after scoring a submission.
type QuizAttemptResult struct {
	Attempt         model.QuizAttempt `json:"attempt"`
	ModuleCompleted bool              `json:"moduleCompleted"`
}

// QuizHistory lists the attempts of one module quiz.
type QuizHistory struct {
	ModuleID  uint                `json:"moduleId"`
	Attempts  []model.QuizAttempt `json:"attempts"`
	BestScore int                 `json:"bestScore"`
	Passed    bool                `json:"passed"`
}

func percentage(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

func (s *ProgressService) findProgress(ctx context.Context, tx *gorm.DB, userID, courseID uint) (*model.UserProgress, error) {
	var progress model.UserProgress
	err := tx.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Validation("course must be started")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load progress", err)
	}
	return &progress, nil
}

// Start creates the progress record of a course once module 1 has content.
// Calling it again returns the existing record.
func (s *ProgressService) Start(ctx context.Context, userID, courseID uint) (*ProgressView, error) {
	course, err := findVisibleCourse(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}

	var first model.Module
	err = s.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB { return db.Order("chunk_order ASC") }).
		Where("course_id = ?", courseID).
		Order("module_order ASC").
		First(&first).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Internal("failed to load first module", err)
	}
	if !course.Status.Learnable() || len(first.Chunks) == 0 {
		return nil, apperror.Validation("course content is not ready yet")
	}

	progress := model.UserProgress{
		UserID:          userID,
		CourseID:        courseID,
		CurrentModuleID: &first.ID,
		CurrentChunkID:  &first.Chunks[0].ID,
		StartedAt:       s.now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&progress).Error
	if err != nil && !database.IsUniqueViolation(err) {
		return nil, apperror.Internal("failed to start course", err)
	}
	return s.GetProgress(ctx, userID, courseID)
}

// GetProgress returns the full progress record of a course.
func (s *ProgressService) GetProgress(ctx context.Context, userID, courseID uint) (*ProgressView, error) {
	if _, err := findVisibleCourse(ctx, s.db, userID, courseID); err != nil {
		return nil, err
	}

	var progress model.UserProgress
	err := s.db.WithContext(ctx).
		Preload("CompletedChunks").
		Preload("CompletedModules").
		Preload("QuizAttempts", func(db *gorm.DB) *gorm.DB { return db.Order("attempted_at ASC, id ASC") }).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("progress not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load progress", err)
	}

	var totalChunks, totalModules int64
	if err := s.db.WithContext(ctx).Model(&model.Chunk{}).
		Joins("JOIN modules ON modules.id = chunks.module_id").
		Where("modules.course_id = ?", courseID).
		Count(&totalChunks).Error; err != nil {
		return nil, apperror.Internal("failed to count chunks", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.Module{}).
		Where("course_id = ?", courseID).
		Count(&totalModules).Error; err != nil {
		return nil, apperror.Internal("failed to count modules", err)
	}

	view := &ProgressView{
		UserProgress:         &progress,
		TotalChunks:          int(totalChunks),
		CompletedChunkCount:  len(progress.CompletedChunks),
		TotalModules:         int(totalModules),
		CompletedModuleCount: len(progress.CompletedModules),
		IsCompleted:          progress.CompletedAt != nil,
	}
	view.ChunkPercentage = percentage(view.CompletedChunkCount, view.TotalChunks)
	view.ModulePercentage = percentage(view.CompletedModuleCount, view.TotalModules)
	return view, nil
}

// chunkInCourse returns the chunk when it belongs to the course.
func (s *ProgressService) chunkInCourse(ctx context.Context, courseID, chunkID uint) (*model.Chunk, error) {
	var chunk model.Chunk
	err := s.db.WithContext(ctx).
		Joins("JOIN modules ON modules.id = chunks.module_id").
		Where("chunks.id = ? AND modules.course_id = ?", chunkID, courseID).
		First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("chunk not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load chunk", err)
	}
	return &chunk, nil
}

// CompleteChunk marks a chunk done and moves the current pointers to it.
// Completing the same chunk twice is a no-op.
func (s *ProgressService) CompleteChunk(ctx context.Context, userID, courseID, chunkID uint) (*ProgressView, error) {
	if _, err := findVisibleCourse(ctx, s.db, userID, courseID); err != nil {
		return nil, err
	}
	progress, err := s.findProgress(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	chunk, err := s.chunkInCourse(ctx, courseID, chunkID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done := model.CompletedChunk{ProgressID: progress.ID, ChunkID: chunk.ID, CompletedAt: s.now()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&done).Error; err != nil &&
			!database.IsUniqueViolation(err) {
			return err
		}
		return tx.Model(progress).Updates(map[string]interface{}{
			"current_module_id": chunk.ModuleID,
			"current_chunk_id":  chunk.ID,
		}).Error
	})
	if err != nil {
		return nil, apperror.Internal("failed to complete chunk", err)
	}
	return s.GetProgress(ctx, userID, courseID)
}

// UpdatePosition moves the current module and chunk pointers.
func (s *ProgressService) UpdatePosition(ctx context.Context, userID, courseID uint, moduleID, chunkID *uint) (*ProgressView, error) {
	if _, err := findVisibleCourse(ctx, s.db, userID, courseID); err != nil {
		return nil, err
	}
	progress, err := s.findProgress(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if chunkID != nil {
		chunk, err := s.chunkInCourse(ctx, courseID, *chunkID)
		if err != nil {
			return nil, err
		}
		updates["current_chunk_id"] = chunk.ID
		updates["current_module_id"] = chunk.ModuleID
	}
	if moduleID != nil && chunkID == nil {
		var count int64
		if err := s.db.WithContext(ctx).Model(&model.Module{}).
			Where("id = ? AND course_id = ?", *moduleID, courseID).
			Count(&count).Error; err != nil {
			return nil, apperror.Internal("failed to load module", err)
		}
		if count == 0 {
			return nil, apperror.NotFound("module not found")
		}
		updates["current_module_id"] = *moduleID
		updates["current_chunk_id"] = nil
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(progress).Updates(updates).Error; err != nil {
			return nil, apperror.Internal("failed to update progress", err)
		}
	}
	return s.GetProgress(ctx, userID, courseID)
}

// moduleWithCourse loads a module whose course the user can see.
func (s *ProgressService) moduleWithCourse(ctx context.Context, userID, moduleID uint) (*model.Module, error) {
	var module model.Module
	err := s.db.WithContext(ctx).
		Joins("JOIN courses ON courses.id = modules.course_id").
		Where("modules.id = ? AND courses.deleted_at IS NULL AND (courses.user_id = ? OR courses.is_public = ?)",
			moduleID, userID, true).
		Preload("Quiz.Questions", func(db *gorm.DB) *gorm.DB { return db.Order("question_order ASC") }).
		First(&module).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("module not found")
	}
	if err != nil {
		return nil, apperror.Internal("failed to load module", err)
	}
	return &module, nil
}

// SubmitQuizAttempt scores a quiz submission, appends the attempt and marks
// the module completed when it passes.
func (s *ProgressService) SubmitQuizAttempt(ctx context.Context, userID, moduleID uint, answers []int) (*QuizAttemptResult, error) {
	module, err := s.moduleWithCourse(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}
	if module.Quiz == nil {
		return nil, apperror.NotFound("quiz not found")
	}
	if len(module.Quiz.Questions) == 0 {
		return nil, apperror.Validation("quiz has no questions")
	}
	progress, err := s.findProgress(ctx, s.db, userID, module.CourseID)
	if err != nil {
		return nil, err
	}

	correct, score, passed := ScoreQuiz(module.Quiz.Questions, answers)
	attempt := model.QuizAttempt{
		ProgressID:     progress.ID,
		ModuleID:       module.ID,
		QuizID:         module.Quiz.ID,
		Answers:        answers,
		CorrectAnswers: correct,
		TotalQuestions: len(module.Quiz.Questions),
		Score:          score,
		Passed:         passed,
		AttemptedAt:    s.now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&attempt).Error; err != nil {
			return err
		}
		if !passed {
			return nil
		}
		var already int64
		if err := tx.Model(&model.CompletedModule{}).
			Where("progress_id = ? AND module_id = ?", progress.ID, module.ID).
			Count(&already).Error; err != nil {
			return err
		}
		if already > 0 {
			return nil
		}
		done := model.CompletedModule{ProgressID: progress.ID, ModuleID: module.ID, CompletedAt: s.now()}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&done).Error
		if err != nil && !database.IsUniqueViolation(err) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, apperror.Internal("failed to record quiz attempt", err)
	}

	return &QuizAttemptResult{Attempt: attempt, ModuleCompleted: passed}, nil
}

// QuizAttempts returns the caller's attempts for a module quiz.
func (s *ProgressService) QuizAttempts(ctx context.Context, userID, moduleID uint) (*QuizHistory, error) {
	module, err := s.moduleWithCourse(ctx, userID, moduleID)
	if err != nil {
		return nil, err
	}

	history := &QuizHistory{ModuleID: moduleID, Attempts: []model.QuizAttempt{}}
	var progress model.UserProgress
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND course_id = ?", userID, module.CourseID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return history, nil
	}
	if err != nil {
		return nil, apperror.Internal("failed to load progress", err)
	}

	if err := s.db.WithContext(ctx).
		Where("progress_id = ? AND module_id = ?", progress.ID, moduleID).
		Order("attempted_at ASC, id ASC").
		Find(&history.Attempts).Error; err != nil {
		return nil, apperror.Internal("failed to load quiz attempts", err)
	}
	for _, a := range history.Attempts {
		if a.Score > history.BestScore {
			history.BestScore = a.Score
		}
		if a.Passed {
			history.Passed = true
		}
	}
	return history, nil
}

// Finalize stamps completedAt once every chunk is done and every module quiz
// has a passing attempt. An already finalized course returns unchanged.
func (s *ProgressService) Finalize(ctx context.Context, userID, courseID uint) (*ProgressView, error) {
	if _, err := findVisibleCourse(ctx, s.db, userID, courseID); err != nil {
		return nil, err
	}
	progress, err := s.findProgress(ctx, s.db, userID, courseID)
	if err != nil {
		return nil, err
	}
	if progress.CompletedAt != nil {
		return s.GetProgress(ctx, userID, courseID)
	}

	var totalChunks, completedChunks int64
	if err := s.db.WithContext(ctx).Model(&model.Chunk{}).
		Joins("JOIN modules ON modules.id = chunks.module_id").
		Where("modules.course_id = ?", courseID).
		Count(&totalChunks).Error; err != nil {
		return nil, apperror.Internal("failed to count chunks", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.CompletedChunk{}).
		Joins("JOIN chunks ON chunks.id = progress_completed_chunks.chunk_id").
		Joins("JOIN modules ON modules.id = chunks.module_id").
		Where("progress_completed_chunks.progress_id = ? AND modules.course_id = ?", progress.ID, courseID).
		Count(&completedChunks).Error; err != nil {
		return nil, apperror.Internal("failed to count completed chunks", err)
	}
	if completedChunks != totalChunks {
		return nil, apperror.Validation("not all chunks completed")
	}

	var quizModules []model.Module
	if err := s.db.WithContext(ctx).
		Joins("JOIN quizzes ON quizzes.module_id = modules.id").
		Where("modules.course_id = ?", courseID).
		Order("modules.module_order ASC").
		Find(&quizModules).Error; err != nil {
		return nil, apperror.Internal("failed to load quiz modules", err)
	}
	for _, m := range quizModules {
		var passed int64
		if err := s.db.WithContext(ctx).Model(&model.QuizAttempt{}).
			Where("progress_id = ? AND module_id = ? AND passed = ?", progress.ID, m.ID, true).
			Count(&passed).Error; err != nil {
			return nil, apperror.Internal("failed to check quiz attempts", err)
		}
		if passed == 0 {
			return nil, apperror.Validation(fmt.Sprintf("quiz for module %d (%s) not passed", m.ModuleOrder, m.Title))
		}
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&model.UserProgress{}).
		Where("id = ? AND completed_at IS NULL", progress.ID).
		Update("completed_at", now).Error; err != nil {
		return nil, apperror.Internal("failed to finalize course", err)
	}
	return s.GetProgress(ctx, userID, courseID)
}
