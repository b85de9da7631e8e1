package community

import (
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

// CommunityHandler serves the public course marketplace.
type CommunityHandler struct {
	community *services.CommunityService
	validator *validation.Validator
	log       *logger.Logger
}

func NewCommunityHandler(community *services.CommunityService, log *logger.Logger) *CommunityHandler {
	return &CommunityHandler{community: community, validator: validation.NewValidator(), log: log}
}

type CourseRequest struct {
	CourseID uint `json:"courseId" validate:"required"`
}

type RateRequest struct {
	CourseID uint   `json:"courseId" validate:"required"`
	Rating   int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment  string `json:"comment" validate:"omitempty,max=1000"`
}

// ListCourses returns published courses
// GET /api/community?search=&sort=recent|rating&page=&limit=
func (h *CommunityHandler) ListCourses(c *fiber.Ctx) error {
	page, limit := query.Page(c)
	sort := c.Query("sort", services.SortRecent)
	if sort != services.SortRecent && sort != services.SortRating {
		return response.BadRequest(c, "sort must be one of: recent rating")
	}

	courses, total, err := h.community.List(c.UserContext(), services.CommunityQuery{
		Search:    c.Query("search"),
		Sort:      sort,
		ListQuery: services.ListQuery{Page: page, Limit: limit},
	})
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Paginated(c, courses, response.CalculatePagination(page, limit, total))
}

// Publish makes one of the caller's courses public
// POST /api/community/publish
func (h *CommunityHandler) Publish(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	var req CourseRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	course, err := h.community.Publish(c.UserContext(), user, req.CourseID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, course)
}

// Unpublish hides one of the caller's courses
// POST /api/community/unpublish
func (h *CommunityHandler) Unpublish(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	var req CourseRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	course, err := h.community.Unpublish(c.UserContext(), user, req.CourseID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, course)
}

// Rate stores the caller's rating of a community course
// POST /api/community/rate
func (h *CommunityHandler) Rate(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	var req RateRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	result, err := h.community.Rate(c.UserContext(), user, req.CourseID, req.Rating, validation.SanitizeString(req.Comment))
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, result)
}

// Remove takes a course out of the community
// DELETE /api/community/:courseId
func (h *CommunityHandler) Remove(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	courseID, err := query.ID(c, "courseId")
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	if err := h.community.Remove(c.UserContext(), user, courseID); err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.SuccessWithMessage(c, "Course removed from community", fiber.Map{"courseId": courseID})
}
