package subscription

import (
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/middleware"
	"github.com/NicoHurtado/cursia-sub002/utils/query"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/NicoHurtado/cursia-sub002/utils/validation"
	"github.com/gofiber/fiber/v2"
)

type SubscriptionHandler struct {
	subscriptions *services.SubscriptionService
	validator     *validation.Validator
	log           *logger.Logger
}

func NewSubscriptionHandler(subscriptions *services.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, validator: validation.NewValidator(), log: log}
}

type CheckoutRequest struct {
	Plan model.Plan `json:"plan" validate:"required,oneof=APRENDIZ EXPERTO MAESTRO"`
}

// Plans lists every plan with its price and limits
// GET /api/subscriptions/plans
func (h *SubscriptionHandler) Plans(c *fiber.Ctx) error {
	return response.Success(c, services.AllPlans())
}

// Checkout starts a payment for a plan
// POST /api/subscriptions/checkout
func (h *SubscriptionHandler) Checkout(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	var req CheckoutRequest
	if err := query.Body(c, h.validator, &req); err != nil {
		return response.Fail(c, h.log, err)
	}
	res, err := h.subscriptions.Checkout(c.UserContext(), user, req.Plan)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, res)
}

// Me returns the caller's plan and subscription
// GET /api/subscriptions/me
func (h *SubscriptionHandler) Me(c *fiber.Ctx) error {
	user, _ := middleware.GetUser(c)
	view, err := h.subscriptions.Me(c.UserContext(), user)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, view)
}

// Cancel stops renewal; the plan stays until the paid period ends
// POST /api/subscriptions/cancel
func (h *SubscriptionHandler) Cancel(c *fiber.Ctx) error {
	userID, _ := middleware.GetUserID(c)
	sub, err := h.subscriptions.Cancel(c.UserContext(), userID)
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.SuccessWithMessage(c, "Subscription cancelled", sub)
}
