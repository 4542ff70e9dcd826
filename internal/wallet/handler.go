package wallet

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
)

// Handler exposes wallet endpoints over HTTP.
type Handler struct {
	svc     *Service
	current func(*fiber.Ctx) (identity.Principal, bool)
}

// NewHandler builds the wallet handler. current extracts the authenticated
// principal placed on the request by the auth middleware.
func NewHandler(svc *Service, current func(*fiber.Ctx) (identity.Principal, bool)) *Handler {
	return &Handler{svc: svc, current: current}
}

func (h *Handler) actor(c *fiber.Ctx) (identity.Principal, error) {
	p, ok := h.current(c)
	if !ok {
		return identity.Principal{}, apperr.Unauthenticated(nil)
	}
	return p, nil
}

// Create handles POST /v1/wallet/transactions.
func (h *Handler) Create(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	t, err := h.svc.CreateTransaction(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": t.ID, "transaction": NewTransactionView(t)})
}

// List handles GET /v1/wallet/transactions.
func (h *Handler) List(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	list, err := h.svc.ListByVendor(c.UserContext(), actor, c.Query("vendor_id"), c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return err
	}
	views := make([]TransactionView, 0, len(list))
	for _, t := range list {
		views = append(views, NewTransactionView(t))
	}
	return c.JSON(fiber.Map{"transactions": views})
}

// Get handles GET /v1/wallet/transactions/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTransaction(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(NewTransactionView(t))
}

// Update handles PUT /v1/wallet/transactions/:id.
func (h *Handler) Update(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	var in UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return apperr.Validation("malformed request body")
	}
	t, err := h.svc.UpdateTransaction(c.UserContext(), actor, c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(NewTransactionView(t))
}

// Delete handles DELETE /v1/wallet/transactions/:id.
func (h *Handler) Delete(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTransaction(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "transaction deleted"})
}

// Balance handles GET /v1/wallet/balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	actor, err := h.actor(c)
	if err != nil {
		return err
	}
	b, err := h.svc.Balance(c.UserContext(), actor, c.Query("vendor_id"))
	if err != nil {
		return err
	}
	return c.JSON(b)
}
