// Package query reads path parameters, paging and JSON bodies off a request.
package query

import (
	"strconv"

	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

// ID parses a positive numeric path parameter.
func ID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.Validation("invalid " + name)
	}
	return uint(id), nil
}

// Page reads ?page= and ?limit=. Bounds are applied by the services.
func Page(c *fiber.Ctx) (page, limit int) {
	return c.QueryInt("page", 1), c.QueryInt("limit", 10)
}

// Body decodes the JSON body into dst and runs its validate tags.
func Body(c *fiber.Ctx, v *validation.Validator, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation("invalid request body")
	}
	if err := v.ValidateStruct(dst); err != nil {
		return apperror.ValidationWithDetails("validation failed", validation.Details(err))
	}
	return nil
}
