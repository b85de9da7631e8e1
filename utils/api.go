package utils

import (
	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	fiber "github.com/gofiber/fiber/v2"
)

// MakeHTTPHandleFunc binds a store-taking handler to a fiber route. Errors
// that escape the handler are written as the standard envelope.
func MakeHTTPHandleFunc(handler func(c *fiber.Ctx, store database.Storage) error, store database.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := handler(c, store); err != nil {
			return response.FromError(c, err)
		}
		return nil
	}
}
