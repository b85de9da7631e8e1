package query

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NicoHurtado/cursia-sub002/utils/apperror"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateBody struct {
	CourseID uint `json:"courseId" validate:"required"`
	Rating   int  `json:"rating" validate:"gte=1,lte=5"`
}

func TestID(t *testing.T) {
	app := fiber.New()
	app.Get("/courses/:id", func(c *fiber.Ctx) error {
		id, err := ID(c, "id")
		if err != nil {
			return c.Status(apperror.From(err).Status()).SendString(err.Error())
		}
		return c.JSON(id)
	})

	for path, want := range map[string]int{
		"/courses/12":  fiber.StatusOK,
		"/courses/0":   fiber.StatusBadRequest,
		"/courses/abc": fiber.StatusBadRequest,
		"/courses/-1":  fiber.StatusBadRequest,
	} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestBody(t *testing.T) {
	v := validation.NewValidator()
	var got error
	app := fiber.New()
	app.Post("/rate", func(c *fiber.Ctx) error {
		var body rateBody
		got = Body(c, v, &body)
		return nil
	})

	send := func(payload string) {
		req := httptest.NewRequest("POST", "/rate", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		_, err := app.Test(req)
		require.NoError(t, err)
	}

	send(`{"courseId": 3, "rating": 4}`)
	assert.NoError(t, got)

	send(`{"courseId": 3, "rating": 9}`)
	require.Error(t, got)
	appErr := apperror.From(got)
	assert.Equal(t, apperror.KindValidation, appErr.Kind)
	assert.Equal(t, "rating must be less than or equal to 5", appErr.Details)

	send(`{not json`)
	assert.Equal(t, "invalid request body", apperror.From(got).Message)
}
