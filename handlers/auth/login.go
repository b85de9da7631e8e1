package auth

import (
	"strings"

	"github.com/NicoHurtado/cursia-sub002/model"
	authutil "github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}

	ctx := c.UserContext()
	ip := c.IP()

	var user model.User
	if err := h.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	_ = h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip)
	return h.session(c, &user, false)
}
