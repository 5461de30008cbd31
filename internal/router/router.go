package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/siswa-progress-api/internal/config"
	"github.com/noah-isme/siswa-progress-api/internal/handler"
	"github.com/noah-isme/siswa-progress-api/internal/middleware"
	"github.com/noah-isme/siswa-progress-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	WindowHandler   *handler.WindowHandler
	ProgressHandler *handler.ProgressHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware, middleware.RateLimit("api", 120, time.Minute))

	if deps.WindowHandler != nil {
		deps.WindowHandler.Register(protected)
	}

	if deps.ProgressHandler != nil {
		deps.ProgressHandler.Register(protected)

		// Staff queue for periods waiting on a custom assessment.
		teacher := api.Group("/teacher", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.ProgressHandler.RegisterTeacher(teacher)
	}
}
