package cron

import (
	"time"

	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// CronHandler exposes scheduler-triggered sweeps over HTTP for external
// schedulers.
type CronHandler struct {
	subscriptions *services.SubscriptionService
	log           *logger.Logger
}

func NewCronHandler(subscriptions *services.SubscriptionService, log *logger.Logger) *CronHandler {
	return &CronHandler{subscriptions: subscriptions, log: log}
}

// ExpireSubscriptions downgrades users whose cancelled plan ran out
// GET /api/cron/expire-subscriptions
func (h *CronHandler) ExpireSubscriptions(c *fiber.Ctx) error {
	now := time.Now()
	downgraded, err := h.subscriptions.ExpireSubscriptions(c.UserContext(), now)
	if err != nil {
		h.log.Error("expire subscriptions failed", "error", err)
		return response.InternalServerError(c, "Failed to expire subscriptions")
	}
	return response.Success(c, fiber.Map{
		"downgraded": downgraded,
		"ranAt":      now.UTC(),
	})
}
