package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mesa-ayuda/helpdesk-service/internal/api/http/handlers"
	"github.com/mesa-ayuda/helpdesk-service/internal/auth"
	"github.com/mesa-ayuda/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/password/reset/request", cfg.Users.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Users.ConfirmPasswordReset)

	protectedAuth := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protectedAuth.Post("/password/change", cfg.Users.ChangePassword)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	protected.Get("/users", cfg.Users.ListActive)

	tickets := protected.Group("/tickets")
	// Static paths before the :id wildcard.
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/catalog", cfg.Tickets.Catalog)

	tickets.Post("", cfg.Tickets.Create)
	tickets.Get("", cfg.Tickets.List)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Put("/:id", cfg.Tickets.Update)
	tickets.Delete("/:id", cfg.Tickets.Delete)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/assign", cfg.Tickets.Assign)
	tickets.Patch("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Patch("/:id/close", cfg.Tickets.Close)
	tickets.Patch("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Patch("/:id/rate", cfg.Tickets.Rate)
	tickets.Post("/:id/comments", cfg.Tickets.AddComment)

	admin := protected.Group("/internal", auth.RequireAdmin())
	admin.Get("/metrics", func(c *fiber.Ctx) error {
		requests, errCounts := cfg.Metrics.Snapshot()
		return c.JSON(fiber.Map{"data": fiber.Map{
			"requests": requests,
			"errors":   errCounts,
		}})
	})
}
