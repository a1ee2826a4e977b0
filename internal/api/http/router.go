package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mileage-service/internal/api/http/handlers"
	"github.com/spec-kit/mileage-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Members        *handlers.MembersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. Reads are public; anything that mutates a
// member requires a bearer token.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/password/reset/request", cfg.Auth.RequestPasswordReset)
	authGroup.Post("/password/reset/confirm", cfg.Auth.ConfirmPasswordReset)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)

	members := app.Group("/api/members")
	members.Get("/", cfg.Members.List)
	members.Get("/search", cfg.Members.Search)
	members.Get("/mileage", cfg.Members.ByMileageRange)
	members.Get("/top-mileage", cfg.Members.TopMileage)
	members.Get("/statistics", cfg.Members.Statistics)
	members.Get("/tier/:tier", cfg.Members.ByTier)
	members.Get("/email/:email", cfg.Members.GetByEmail)
	members.Get("/check-email/:email", cfg.Members.CheckEmail)
	members.Get("/:id", cfg.Members.Get)

	protected := members.Group("", cfg.AuthMiddleware.Handle)
	protected.Put("/:id", cfg.Members.Update)
	protected.Delete("/:id", cfg.Members.Delete)
	protected.Post("/:id/restore", cfg.Members.Restore)
	protected.Post("/:id/mileage/accrue", cfg.Members.Accrue)
	protected.Post("/:id/mileage/redeem", cfg.Members.Redeem)
	protected.Get("/:id/mileage/history", cfg.Members.History)
}
