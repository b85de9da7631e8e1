package auth

import (
	"strings"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/model"
	authutil "github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	db                   *gorm.DB
	jwtManager           *authutil.JWTManager
	blacklistService     *authutil.BlacklistService
	bruteForceProtection *middleware.BruteForceProtection
	validator            *validation.Validator
	log                  *logger.Logger
}

// NewAuthHandler creates a new auth handler. bruteForceProtection may be nil.
func NewAuthHandler(db *gorm.DB, jwtManager *authutil.JWTManager, bruteForceProtection *middleware.BruteForceProtection, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		db:                   db,
		jwtManager:           jwtManager,
		blacklistService:     authutil.NewBlacklistService(db),
		bruteForceProtection: bruteForceProtection,
		validator:            validation.NewValidator(),
		log:                  log,
	}
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email     string   `json:"email" validate:"required,email,max=254"`
	Password  string   `json:"password" validate:"required,min=8,max=72"`
	Name      string   `json:"name" validate:"required,min=2,max=100"`
	Interests []string `json:"interests" validate:"omitempty,max=20,dive,min=1,max=50"`
}

// SessionResponse is returned by register, login and refresh.
type SessionResponse struct {
	User UserResponse `json:"user"`
	*authutil.TokenPair
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        uint       `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Bio       string     `json:"bio,omitempty"`
	Role      string     `json:"role"`
	Plan      model.Plan `json:"plan"`
	Interests []string   `json:"interests"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toUserResponse(u *model.User) UserResponse {
	interests := []string(u.Interests)
	if interests == nil {
		interests = []string{}
	}
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Bio:       u.Bio,
		Role:      u.Role,
		Plan:      u.Plan,
		Interests: interests,
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandler) session(c *fiber.Ctx, user *model.User, created bool) error {
	pair, err := h.jwtManager.IssuePair(user.ID, user.Email, user.Role, user.TokenVersion)
	if err != nil {
		h.log.Error("failed to sign tokens", "user_id", user.ID, "error", err)
		return response.InternalServerError(c, "Failed to generate tokens")
	}
	res := SessionResponse{User: toUserResponse(user), TokenPair: pair}
	if created {
		return response.Created(c, res)
	}
	return response.Success(c, res)
}

// Register handles user registration
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if ok, problems := validation.ValidatePassword(req.Password); !ok {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", strings.Join(problems, "; "))
	}

	hashedPassword, err := authutil.HashPassword(req.Password)
	if err != nil {
		return response.InternalServerError(c, "Failed to process password")
	}

	interests := make([]string, 0, len(req.Interests))
	for _, i := range req.Interests {
		interests = append(interests, validation.SanitizeString(i))
	}

	user := model.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         validation.SanitizeString(req.Name),
		Role:         model.RoleUser,
		Plan:         model.PlanFree,
		Interests:    interests,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return response.Conflict(c, "User with this email already exists")
		}
		h.log.Error("failed to create user", "error", err)
		return response.InternalServerError(c, "Failed to create user")
	}

	h.log.Info("user registered", "user_id", user.ID)
	return h.session(c, &user, true)
}
