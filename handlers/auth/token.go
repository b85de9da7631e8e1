package auth

import (
	"github.com/NicoHurtado/cursia-sub002/model"
	authutil "github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// new pair is issued.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	ctx := c.UserContext()

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken)
	if err != nil {
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}
	if claims.TokenType != authutil.TokenTypeRefresh {
		return response.Unauthorized(c, "Invalid token type")
	}

	isRevoked, err := h.blacklistService.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check token status")
	}
	if isRevoked {
		return response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		return response.Unauthorized(c, "User not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}

	if err := h.blacklistService.RevokeToken(ctx, claims.ID, user.ID, h.jwtManager.ExpiresAt(claims), "token_refresh"); err != nil {
		h.log.Warn("failed to revoke rotated refresh token", "user_id", user.ID, "error", err)
	}
	return h.session(c, &user, false)
}

// Logout revokes the access token of the current session
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	if err := h.blacklistService.RevokeToken(c.UserContext(), claims.ID, claims.UserID, h.jwtManager.ExpiresAt(claims), "logout"); err != nil {
		h.log.Error("failed to revoke token", "user_id", claims.UserID, "error", err)
		return response.InternalServerError(c, "Failed to logout")
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}

// LogoutAll invalidates every token issued to the caller.
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	if err := h.blacklistService.RevokeAllUserTokens(c.UserContext(), userID); err != nil {
		return response.InternalServerError(c, "Failed to logout")
	}
	return response.SuccessWithMessage(c, "All sessions closed", nil)
}
