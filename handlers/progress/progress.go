package progress

import (
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

// ProgressHandler serves learner progress and quiz attempts.
type ProgressHandler struct {
	progress  *services.ProgressService
	validator *validation.Validator
	log       *logger.Logger
}

func NewProgressHandler(progress *services.ProgressService, log *logger.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, validator: validation.NewValidator(), log: log}
}

// UpdateProgressRequest marks a chunk done and/or moves the current pointers.
type UpdateProgressRequest struct {
	CompletedChunkID *uint `json:"completedChunkId" validate:"omitempty,gt=0"`
	CurrentModuleID  *uint `json:"currentModuleId" validate:"omitempty,gt=0"`
	CurrentChunkID   *uint `json:"currentChunkId" validate:"omitempty,gt=0"`
}

// SubmitQuizRequest is one quiz submission.
type SubmitQuizRequest struct {
	ModuleID uint  `json:"moduleId" validate:"required"`
	Answers  []int `json:"answers" validate:"required,min=1,dive,gte=0"`
}

// GetProgress returns the caller's progress in a course
// GET /api/progress/:courseId
func (h *ProgressHandler) GetProgress(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	courseID, err := query.ID(c, "courseId")
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	view, err := h.progress.GetProgress(c.UserContext(), userID, courseID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, view)
}

// UpdateProgress records a completed chunk and the reading position
// POST /api/progress/:courseId
func (h *ProgressHandler) UpdateProgress(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	courseID, err := query.ID(c, "courseId")
	if err != nil {
		return response.Fail(c, h.log, err)
	}

	var req UpdateProgressRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	if req.CompletedChunkID == nil && req.CurrentModuleID == nil && req.CurrentChunkID == nil {
		return response.Fail(c, h.log, apperror.Validation("nothing to update"))
	}

	ctx := c.UserContext()
	var view *services.ProgressView
	if req.CompletedChunkID != nil {
		if view, err = h.progress.CompleteChunk(ctx, userID, courseID, *req.CompletedChunkID); err != nil {
			return response.Fail(c, h.log, err)
		}
	}
	if req.CurrentModuleID != nil || req.CurrentChunkID != nil {
		if view, err = h.progress.UpdatePosition(ctx, userID, courseID, req.CurrentModuleID, req.CurrentChunkID); err != nil {
			return response.Fail(c, h.log, err)
		}
	}
	return response.Success(c, view)
}

// SubmitQuiz scores a quiz attempt
// POST /api/quiz-attempts
func (h *ProgressHandler) SubmitQuiz(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)

	var req SubmitQuizRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}

	result, err := h.progress.SubmitQuizAttempt(c.UserContext(), userID, req.ModuleID, req.Answers)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Created(c, result)
}

// QuizAttempts lists the caller's attempts at a module quiz
// GET /api/quiz-attempts/:moduleId
func (h *ProgressHandler) QuizAttempts(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	moduleID, err := query.ID(c, "moduleId")
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	history, err := h.progress.QuizAttempts(c.UserContext(), userID, moduleID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, history)
}
