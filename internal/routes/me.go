package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/middleware"
	"github.com/bazaarino/bazaar/internal/wallet"
)

// RegisterMeRoute exposes the authenticated principal. Vendors also get their
// current wallet balance.
func RegisterMeRoute(r fiber.Router, authn fiber.Handler, wallets *wallet.Service) {
	r.Get("/me", authn, func(c *fiber.Ctx) error {
		p, ok := middleware.CurrentPrincipal(c)
		if !ok {
			return apperr.Unauthenticated(nil)
		}
		view := identity.NewView(p)
		if p.Kind == identity.KindVendor {
			bal, err := wallets.Balance(c.UserContext(), p, p.ID)
			if err != nil {
				return err
			}
			view.WalletBalance = &bal.Amount
		}
		resp := fiber.Map{"principal": view}
		if s, ok := middleware.CurrentSession(c); ok {
			resp["session"] = fiber.Map{
				"id":         s.ID,
				"expires_at": s.ExpiresAt,
				"created_at": s.CreatedAt,
			}
		}
		return c.JSON(resp)
	})
}
