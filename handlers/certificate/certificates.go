package certificate

import (
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

type CertificateHandler struct {
	certificates *services.CertificateService
	validator    *validation.Validator
	log          *logger.Logger
}

func NewCertificateHandler(certificates *services.CertificateService, log *logger.Logger) *CertificateHandler {
	return &CertificateHandler{certificates: certificates, validator: validation.NewValidator(), log: log}
}

type GenerateRequest struct {
	CourseID uint `json:"courseId" validate:"required"`
}

// Generate issues (or returns) the caller's certificate for a course
// POST /api/certificates/generate
func (h *CertificateHandler) Generate(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	var req GenerateRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	cert, err := h.certificates.Generate(c.UserContext(), user, req.CourseID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, cert)
}

// Verify is public
// GET /api/certificates/:id/verify
func (h *CertificateHandler) Verify(c *fiber.Ctx) error {
	cert, err := h.certificates.Verify(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, fiber.Map{"valid": true, "certificate": cert})
}

// List returns the caller's certificates
// GET /api/certificates
func (h *CertificateHandler) List(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	certs, err := h.certificates.List(c.UserContext(), userID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, certs)
}
