package middleware

import (
	"encoding/json"
	"strconv"

	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminAuditLog records an audit row for a successful admin action. For user
// resources the row before the change is stored as the old value.
func AdminAuditLog(db *gorm.DB, log *logger.Logger, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin, ok := GetUser(c)
		if !ok {
			return c.Next()
		}

		var resourceID uint
		if id, err := strconv.ParseUint(c.Params("id"), 10, 32); err == nil {
			resourceID = uint(id)
		}

		var oldValue datatypes.JSON
		if resource == "users" && resourceID > 0 {
			var user model.User
			if err := db.WithContext(c.UserContext()).First(&user, resourceID).Error; err == nil {
				oldValue, _ = json.Marshal(user)
			}
		}

		var newValue datatypes.JSON
		if body := c.Body(); len(body) > 0 && json.Valid(body) {
			newValue = datatypes.JSON(append([]byte(nil), body...))
		}

		// fiber reuses the context after the handler returns, copy what we need.
		entry := model.AdminAuditLog{
			AdminID:     admin.ID,
			Action:      action,
			Resource:    resource,
			ResourceID:  resourceID,
			OldValue:    oldValue,
			NewValue:    newValue,
			IPAddress:   string([]byte(c.IP())),
			UserAgent:   string([]byte(c.Get("User-Agent"))),
			Description: c.Method() + " " + string([]byte(c.Path())),
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusBadRequest {
			return nil
		}

		if err := db.WithContext(c.UserContext()).Create(&entry).Error; err != nil {
			log.Error("failed to write admin audit log", "action", action, "error", err)
		}
		return nil
	}
}
