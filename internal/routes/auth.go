package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/auth"
)

// RegisterAuthRoutes wires the OTP, session and token endpoints. rateLimiter
// guards every route that issues or checks a code.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/request_otp", rateLimiter, h.RequestOTP)
	group.Post("/register", rateLimiter, h.Register)
	group.Post("/verify", rateLimiter, h.Verify)
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
}
