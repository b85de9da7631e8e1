package webhook

import (
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

type WompiHandler struct {
	reconciler *services.SubscriptionReconciler
	log        *logger.Logger
}

func NewWompiHandler(reconciler *services.SubscriptionReconciler, log *logger.Logger) *WompiHandler {
	return &WompiHandler{reconciler: reconciler, log: log}
}

// Receive authenticates and applies a Wompi event. The raw body is what gets
// signed, so it is read before any parsing.
// POST /api/webhooks/wompi
func (h *WompiHandler) Receive(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	result, err := h.reconciler.HandleWebhook(c.UserContext(), body, c.Get(wompi.SignatureHeader))
	if err != nil {
		return response.Fail(c, h.log, err)
	}
	return response.Success(c, result)
}
