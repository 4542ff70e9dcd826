package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/middleware"
)

// RegisterAdminRoutes wires principal lifecycle management for admins.
func RegisterAdminRoutes(r fiber.Router, h *identity.Handler, authn fiber.Handler) {
	group := r.Group("/admin", authn, middleware.RequireRole(identity.RoleAdmin))
	group.Post("/principals/:id/deactivate", h.Deactivate)
	group.Delete("/principals/:id", h.Delete)
}
