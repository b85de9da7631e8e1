package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateRequest struct {
	CourseID uint   `json:"courseId" validate:"required"`
	Rating   int    `json:"rating" validate:"gte=1,lte=5"`
	Plan     string `json:"plan" validate:"omitempty,oneof=FREE MAESTRO"`
}

func TestDetailsUsesJSONFieldNames(t *testing.T) {
	v := NewValidator()

	err := v.ValidateStruct(rateRequest{Rating: 7, Plan: "GOLD"})
	require.Error(t, err)

	fields := FormatValidationErrors(err)
	assert.Equal(t, "courseId is required", fields["courseId"])
	assert.Equal(t, "rating must be less than or equal to 5", fields["rating"])
	assert.Equal(t, "plan must be one of: FREE MAESTRO", fields["plan"])

	assert.Equal(t,
		"courseId is required; plan must be one of: FREE MAESTRO; rating must be less than or equal to 5",
		Details(err))
}

func TestValidatePassword(t *testing.T) {
	ok, errs := ValidatePassword("12345678")
	assert.False(t, ok)
	assert.Len(t, errs, 1)

	ok, errs = ValidatePassword("aprender123")
	assert.True(t, ok)
	assert.Empty(t, errs)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "Curso de Go", SanitizeString("  Curso\x00 de Go \n"))
}
