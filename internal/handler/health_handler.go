package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/openedu-labs/qfeed-api/internal/config"
	"github.com/openedu-labs/qfeed-api/internal/utils"
)

var serviceStart = time.Now()

// HealthResponse reports liveness plus the wiring a grading deployment
// cannot run without.
type HealthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	Service           string    `json:"service"`
	Environment       string    `json:"environment"`
	Uptime            string    `json:"uptime"`
	SandboxConfigured bool      `json:"sandbox_configured"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:            "ok",
			Timestamp:         time.Now().UTC(),
			Service:           cfg.AppName,
			Environment:       cfg.AppEnv,
			Uptime:            time.Since(serviceStart).Round(time.Second).String(),
			SandboxConfigured: cfg.SandboxEndpoint != "",
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
