package handlers

import (
	"context"
	"time"

	"github.com/NicoHurtado/cursia-sub002/database"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/NicoHurtado/cursia-sub002/utils/response"
	"github.com/gofiber/fiber/v2"
)

// Integrations reports which optional integrations are configured.
type Integrations struct {
	Wompi        bool   `json:"wompi"`
	Redis        bool   `json:"redis"`
	Anthropic    bool   `json:"anthropic"`
	YouTube      bool   `json:"youtube"`
	Cron         bool   `json:"cron"`
	ContentStore string `json:"contentStore"`
}

type HealthHandler struct {
	store        database.Storage
	integrations Integrations
	log          *logger.Logger
}

func NewHealthHandler(store database.Storage, integrations Integrations, log *logger.Logger) *HealthHandler {
	return &HealthHandler{store: store, integrations: integrations, log: log}
}

// CheckHealth pings the database and lists the configured integrations.
// GET /api/health
func (h *HealthHandler) CheckHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	body := fiber.Map{
		"timestamp":    time.Now().UTC(),
		"integrations": h.integrations,
	}
	if err := h.store.HealthCheck(ctx); err != nil {
		h.log.Error("health check failed", "error", err)
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
		return response.ServiceUnavailable(c, "Database unavailable", body)
	}

	body["status"] = "ok"
	body["database"] = "connected"
	return response.Success(c, body)
}
