package admin

import (
	"errors"
	"strings"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var validate = validation.NewValidator()

// ListUsersRequest represents the query parameters for listing users
type ListUsersRequest struct {
	Page   int    `query:"page"`
	Limit  int    `query:"limit"`
	Role   string `query:"role"`
	Plan   string `query:"plan"`
	Search string `query:"search"`
}

// UpdatePlanRequest represents the request body for a manual plan change
type UpdatePlanRequest struct {
	Plan model.Plan `json:"plan" validate:"required,oneof=FREE APRENDIZ EXPERTO MAESTRO"`
}

// ListUsers retrieves users with pagination and filters
// GET /api/admin/users
func ListUsers(c *fiber.Ctx, store database.Storage) error {
	var req ListUsersRequest
	if err := c.QueryParser(&req); err != nil {
		return response.BadRequest(c, "Invalid query parameters")
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}

	q := store.GetDB().WithContext(c.UserContext()).Model(&model.User{})
	if req.Role != "" {
		q = q.Where("role = ?", req.Role)
	}
	if req.Plan != "" {
		q = q.Where("plan = ?", strings.ToUpper(req.Plan))
	}
	if req.Search != "" {
		term := "%" + strings.ToLower(req.Search) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", term, term)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	users := []model.User{}
	if err := q.Order("created_at DESC").Limit(req.Limit).Offset((req.Page - 1) * req.Limit).Find(&users).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch users")
	}

	return response.Paginated(c, users, response.CalculatePagination(req.Page, req.Limit, total))
}

// UpdateUserPlan sets a user's plan by hand. Wrapped by the audit middleware.
// PATCH /api/admin/users/:id/plan
func UpdateUserPlan(c *fiber.Ctx, store database.Storage) error {
	userID, err := query.ID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req UpdatePlanRequest
	if err := query.Body(c, validate, &req); err != nil {
		return response.FromError(c, err)
	}

	db := store.GetDB().WithContext(c.UserContext())
	var user model.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to fetch user")
	}

	if err := db.Model(&user).Update("plan", req.Plan).Error; err != nil {
		return response.InternalServerError(c, "Failed to update plan")
	}

	return response.SuccessWithMessage(c, "Plan updated", user)
}

// PlanCount is the number of users on one plan.
type PlanCount struct {
	Plan  model.Plan `json:"plan"`
	Users int64      `json:"users"`
}

// StatusCount is the number of courses in one status.
type StatusCount struct {
	Status  model.CourseStatus `json:"status"`
	Courses int64              `json:"courses"`
}

// GetStats returns users per plan, courses per status and subscription totals
// GET /api/admin/stats
func GetStats(c *fiber.Ctx, store database.Storage) error {
	db := store.GetDB().WithContext(c.UserContext())

	plans := []PlanCount{}
	if err := db.Model(&model.User{}).Select("plan, COUNT(*) AS users").Group("plan").Order("plan").Scan(&plans).Error; err != nil {
		return response.InternalServerError(c, "Failed to count users")
	}

	statuses := []StatusCount{}
	if err := db.Model(&model.Course{}).Select("status, COUNT(*) AS courses").Group("status").Order("status").Scan(&statuses).Error; err != nil {
		return response.InternalServerError(c, "Failed to count courses")
	}

	var active, published, certificates int64
	db.Model(&model.Subscription{}).Where("status = ?", model.SubscriptionActive).Count(&active)
	db.Model(&model.Course{}).Where("is_public = ?", true).Count(&published)
	db.Model(&model.Certificate{}).Count(&certificates)

	return response.Success(c, fiber.Map{
		"usersByPlan":         plans,
		"coursesByStatus":     statuses,
		"activeSubscriptions": active,
		"publishedCourses":    published,
		"certificates":        certificates,
	})
}
