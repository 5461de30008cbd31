package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/siswa-progress-api/internal/config"
	"github.com/noah-isme/siswa-progress-api/internal/utils"
)

var startedAt = time.Now().UTC()

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Environment   string    `json:"environment"`
	Timezone      string    `json:"timezone"`
	UptimeSeconds int64     `json:"uptimeSeconds"`
}

// HealthCheck returns a handler that reports application health information.
// The institution timezone is included so operators can sanity-check which
// zone window displays are rendered in.
func HealthCheck(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		now := time.Now().UTC()
		payload := HealthResponse{
			Status:        "ok",
			Timestamp:     now,
			Service:       cfg.AppName,
			Environment:   cfg.AppEnv,
			Timezone:      cfg.InstitutionTimezone,
			UptimeSeconds: int64(now.Sub(startedAt).Seconds()),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
