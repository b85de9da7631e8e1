package middleware

import (
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// RequirePlan lets the request through only when the authenticated user is on
// one of the given plans. Must run after AuthMiddleware.Required.
func RequirePlan(message string, plans ...model.Plan) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok {
			return response.Unauthorized(c, "Authentication required")
		}
		for _, p := range plans {
			if user.Plan == p {
				return c.Next()
			}
		}
		return response.Forbidden(c, message)
	}
}
