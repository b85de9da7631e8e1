package auth

import (
	"github.com/NicoHurtado/cursia-sub002/model"
	authutil "github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UpdateProfileRequest represents a profile update request. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	Name      *string   `json:"name" validate:"omitempty,min=2,max=100"`
	Bio       *string   `json:"bio" validate:"omitempty,max=500"`
	Interests *[]string `json:"interests" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, toUserResponse(user))
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req UpdateProfileRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		user.Name = validation.SanitizeString(*req.Name)
		updates["name"] = user.Name
	}
	if req.Bio != nil {
		user.Bio = validation.SanitizeString(*req.Bio)
		updates["bio"] = user.Bio
	}
	if req.Interests != nil {
		user.Interests = *req.Interests
		updates["interests"] = user.Interests
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(c.UserContext()).Model(user).Updates(updates).Error; err != nil {
			h.log.Error("failed to update profile", "user_id", user.ID, "error", err)
			return response.InternalServerError(c, "Failed to update profile")
		}
	}

	return response.Success(c, toUserResponse(user))
}

// ChangePassword sets a new password and invalidates every existing session.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	var req ChangePasswordRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	if err := authutil.VerifyPassword(user.PasswordHash, req.OldPassword); err != nil {
		return response.BadRequest(c, "Current password is incorrect")
	}

	hashedPassword, err := authutil.HashPassword(req.NewPassword)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	if err := h.db.WithContext(c.UserContext()).Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"password_hash": hashedPassword,
		"token_version": gorm.Expr("token_version + ?", 1),
	}).Error; err != nil {
		return response.InternalServerError(c, "Failed to update password")
	}

	return response.SuccessWithMessage(c, "Password changed successfully. Please login again with your new password", nil)
}
