package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// CronSecret guards scheduler endpoints with "Authorization: Bearer <secret>".
// An empty secret rejects every request.
func CronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, found := strings.CutPrefix(c.Get("Authorization"), "Bearer ")
		if secret == "" || !found ||
			subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return response.Unauthorized(c, "Unauthorized")
		}
		return c.Next()
	}
}
