package identity

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/apperr"
)

// Handler exposes administrative principal endpoints.
type Handler struct {
	service *Service
	current func(*fiber.Ctx) (Principal, bool)
}

// NewHandler builds the handler. current extracts the authenticated principal
// placed on the request by the auth middleware.
func NewHandler(service *Service, current func(*fiber.Ctx) (Principal, bool)) *Handler {
	return &Handler{service: service, current: current}
}

// Deactivate handles POST /v1/admin/principals/:id/deactivate.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	actor, ok := h.current(c)
	if !ok {
		return apperr.Unauthenticated(nil)
	}
	if err := h.service.Deactivate(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Delete handles DELETE /v1/admin/principals/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	actor, ok := h.current(c)
	if !ok {
		return apperr.Unauthenticated(nil)
	}
	if err := h.service.Delete(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// View is the JSON shape of a principal.
type View struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Phone         string   `json:"phone"`
	Name          string   `json:"name"`
	Roles         []string `json:"roles"`
	Status        string   `json:"status"`
	OwnerName     string   `json:"owner_name,omitempty"`
	Address       string   `json:"address,omitempty"`
	Location      string   `json:"location,omitempty"`
	City          string   `json:"city,omitempty"`
	Province      string   `json:"province,omitempty"`
	CategoryIDs   []string `json:"category_ids,omitempty"`
	WalletBalance *int64   `json:"wallet_balance,omitempty"`
}

// NewView renders p for clients.
func NewView(p Principal) View {
	v := View{
		ID:     p.ID,
		Kind:   string(p.Kind),
		Phone:  p.Phone,
		Name:   p.Name,
		Roles:  p.RoleNames(),
		Status: string(p.Status),
	}
	if p.Vendor != nil {
		balance := p.Vendor.WalletBalance
		v.OwnerName = p.Vendor.OwnerName
		v.Address = p.Vendor.Address
		v.Location = p.Vendor.Location
		v.City = p.Vendor.City
		v.Province = p.Vendor.Province
		v.CategoryIDs = p.Vendor.CategoryIDs
		v.WalletBalance = &balance
	}
	return v
}
