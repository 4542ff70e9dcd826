package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/middleware"
	"github.com/bazaarino/bazaar/internal/wallet"
)

// RegisterWalletRoutes wires the vendor wallet endpoints. Reads are open to
// the owning vendor and admins; creating a transaction needs the vendor role.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, authn, idempotency fiber.Handler) {
	group := r.Group("/wallet", authn)
	group.Get("/balance", middleware.RequireRole(identity.RoleVendor, identity.RoleAdmin), h.Balance)
	group.Get("/transactions", middleware.RequireRole(identity.RoleVendor, identity.RoleAdmin), h.List)
	group.Post("/transactions", middleware.RequireRole(identity.RoleVendor), idempotency, h.Create)
	group.Get("/transactions/:id", h.Get)
	group.Put("/transactions/:id", idempotency, h.Update)
	group.Delete("/transactions/:id", idempotency, h.Delete)
}
