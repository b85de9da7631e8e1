package course

import (
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

// CourseHandler serves the course lifecycle and generation status routes.
type CourseHandler struct {
	courses   *services.CourseService
	status    *services.CourseStatusService
	progress  *services.ProgressService
	validator *validation.Validator
	log       *logger.Logger
}

func NewCourseHandler(courses *services.CourseService, status *services.CourseStatusService, progress *services.ProgressService, log *logger.Logger) *CourseHandler {
	return &CourseHandler{
		courses:   courses,
		status:    status,
		progress:  progress,
		validator: validation.NewValidator(),
		log:       log,
	}
}

// CreateCourseRequest represents the request body for creating a course
type CreateCourseRequest struct {
	Prompt         string `json:"prompt" validate:"required,min=3,max=2000"`
	Level          string `json:"level" validate:"omitempty,oneof=principiante intermedio avanzado"`
	SourceDocument string `json:"sourceDocument" validate:"omitempty,max=200000"`
}

// CreateCourse queues the generation of a new course
// POST /api/courses
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "")
	}

	var req CreateCourseRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}

	course, err := h.courses.Create(c.UserContext(), user, services.CreateCourseInput{
		Prompt:         validation.SanitizeString(req.Prompt),
		Level:          req.Level,
		SourceDocument: req.SourceDocument,
	})
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Created(c, course)
}

// ListCourses returns the caller's courses
// GET /api/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	page, limit := query.Page(c)

	courses, total, err := h.courses.List(c.UserContext(), userID, services.ListQuery{Page: page, Limit: limit})
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// ListTrash returns the caller's soft-deleted courses
// GET /api/courses/trash
func (h *CourseHandler) ListTrash(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	courses, err := h.courses.Trash(c.UserContext(), userID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, courses)
}

// courseAction runs fn with the caller and the :id course.
func (h *CourseHandler) courseAction(fn func(c *fiber.Ctx, userID, courseID uint) (interface{}, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			return response.Unauthorized(c, "")
		}
		courseID, err := query.ID(c, "id")
		if err != nil {
			return response.Fail(c, h.log, err)
		}
		data, err := fn(c, userID, courseID)
		if err != nil {
			return response.Fail(c, h.log, err)
		}
		return response.Success(c, data)
	}
}

// GetCourse returns a course with its content
// GET /api/courses/:id
func (h *CourseHandler) GetCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.courses.Get(c.UserContext(), userID, courseID)
	})
}

// CancelCourse stops generation
// POST /api/courses/:id/cancel
func (h *CourseHandler) CancelCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.courses.Cancel(c.UserContext(), userID, courseID)
	})
}

// DeleteCourse moves a course to the trash
// DELETE /api/courses/:id/delete
func (h *CourseHandler) DeleteCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		if err := h.courses.SoftDelete(c.UserContext(), userID, courseID); err != nil {
			return nil, err
		}
		return fiber.Map{"id": courseID, "deleted": true}, nil
	})
}

// RestoreCourse takes a course out of the trash
// POST /api/courses/:id/restore
func (h *CourseHandler) RestoreCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.courses.Restore(c.UserContext(), userID, courseID)
	})
}

// PermanentDeleteCourse removes a trashed course for good
// DELETE /api/courses/:id/permanent-delete
func (h *CourseHandler) PermanentDeleteCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		if err := h.courses.PermanentDelete(c.UserContext(), userID, courseID); err != nil {
			return nil, err
		}
		return fiber.Map{"id": courseID, "permanentlyDeleted": true}, nil
	})
}

// StartCourse creates the caller's progress record
// POST /api/courses/:id/start
func (h *CourseHandler) StartCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.progress.Start(c.UserContext(), userID, courseID)
	})
}

// FinalizeCourse marks the course completed once every requirement is met
// POST /api/courses/:id/finalize
func (h *CourseHandler) FinalizeCourse() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.progress.Finalize(c.UserContext(), userID, courseID)
	})
}

// CourseStatus returns the status and progress percentage
// GET /api/courses/:id/status
func (h *CourseHandler) CourseStatus() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.status.Status(c.UserContext(), userID, courseID)
	})
}

// GenerationStatus returns per-module readiness and queued jobs
// GET /api/courses/:id/generation-status
func (h *CourseHandler) GenerationStatus() fiber.Handler {
	return h.courseAction(func(c *fiber.Ctx, userID, courseID uint) (interface{}, error) {
		return h.status.GenerationStatus(c.UserContext(), userID, courseID)
	})
}
