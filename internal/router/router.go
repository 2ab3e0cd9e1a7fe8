package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/openedu-labs/qfeed-api/internal/config"
	"github.com/openedu-labs/qfeed-api/internal/handler"
	"github.com/openedu-labs/qfeed-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	FeedbackHandler *handler.FeedbackHandler
	GradeHandler    *handler.GradeHandler
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

	// Block feedback (per-question grading)
	if deps.FeedbackHandler != nil {
		blocks := app.Group("/api/v1/blocks", jwtMiddleware)
		deps.FeedbackHandler.Register(blocks)
	}

	// Submission score & grade resolution
	if deps.GradeHandler != nil {
		submissions := app.Group("/api/v1/submissions", jwtMiddleware)
		deps.GradeHandler.Register(submissions)

		admin := app.Group("/api/v1/admin/assignments", jwtMiddleware)
		deps.GradeHandler.RegisterAdmin(admin)
	}
}
