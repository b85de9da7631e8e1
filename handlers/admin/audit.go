package admin

import (
	"errors"
	"strconv"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ListAuditLogs retrieves admin audit logs with pagination
// GET /api/admin/audit-logs?action=&resource=&adminId=
func ListAuditLogs(c *fiber.Ctx, store database.Storage) error {
	page, limit := query.Page(c)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := store.GetDB().WithContext(c.UserContext()).Model(&model.AdminAuditLog{})
	if action := c.Query("action"); action != "" {
		q = q.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		q = q.Where("resource = ?", resource)
	}
	if adminID, err := strconv.ParseUint(c.Query("adminId"), 10, 32); err == nil {
		q = q.Where("admin_id = ?", adminID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to count audit logs")
	}

	logs := []model.AdminAuditLog{}
	if err := q.Offset((page - 1) * limit).Limit(limit).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch audit logs")
	}

	return response.Paginated(c, logs, response.CalculatePagination(page, limit, total))
}

// GetAuditLog retrieves a specific audit log entry
// GET /api/admin/audit-logs/:id
func GetAuditLog(c *fiber.Ctx, store database.Storage) error {
	logID, err := query.ID(c, "id")
	if err != nil {
		return response.BadRequest(c, "Invalid log ID")
	}

	var entry model.AdminAuditLog
	if err := store.GetDB().WithContext(c.UserContext()).First(&entry, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Audit log not found")
		}
		return response.InternalServerError(c, "Failed to fetch audit log")
	}

	return response.Success(c, entry)
}
