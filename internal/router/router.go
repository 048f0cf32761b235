package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-review-engine/internal/config"
	"github.com/noah-isme/gema-review-engine/internal/handler"
	"github.com/noah-isme/gema-review-engine/internal/middleware"
	"github.com/noah-isme/gema-review-engine/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler   *handler.AssignmentHandler
	SubmissionHandler   *handler.SubmissionHandler
	PeerReviewHandler   *handler.PeerReviewHandler
	NotificationHandler *handler.NotificationHandler
	AdminHandler        *handler.AdminHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	protected := api.Group("", jwtMiddleware, middleware.RequireActor())

	guards := handler.RouteGuards{
		Staff: middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin),
		Admin: middleware.RequireRole(middleware.RoleAdmin),
		Batch: middleware.RateLimit("batch", cfg.BatchRateLimit, time.Minute),
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(protected.Group("/assignments"), guards)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(protected, guards)
	}
	if deps.PeerReviewHandler != nil {
		deps.PeerReviewHandler.Register(protected, guards)
	}
	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(protected.Group("/notifications"))
	}
	if deps.AdminHandler != nil {
		deps.AdminHandler.Register(protected.Group("/admin"), guards)
	}
}
