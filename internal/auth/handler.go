package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/middleware"
)

// Handler exposes the auth endpoints.
type Handler struct {
	svc *Service
}

// NewHandler builds the auth handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type otpRequest struct {
	Phone string `json:"phone"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("malformed request body")
	}
	return nil
}

// RequestOTP handles POST /v1/auth/request_otp.
func (h *Handler) RequestOTP(c *fiber.Ctx) error {
	var req otpRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.svc.RequestOTP(c.UserContext(), req.Phone); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "verification code sent"})
}

// Register handles POST /v1/auth/register.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// Verify handles POST /v1/auth/verify.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.DeviceInfo = deviceInfo(c, req.DeviceInfo)
	res, err := h.svc.VerifyRegistration(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Login handles POST /v1/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req VerifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.DeviceInfo = deviceInfo(c, req.DeviceInfo)
	res, err := h.svc.Login(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// Refresh handles POST /v1/auth/refresh. The refresh token travels as the
// bearer credential; a refresh_token body field is accepted as a fallback.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	token, err := middleware.BearerToken(c)
	if err != nil {
		var req refreshRequest
		if len(c.Body()) > 0 {
			_ = c.BodyParser(&req)
		}
		if req.RefreshToken == "" {
			return err
		}
		token = req.RefreshToken
	}
	out, err := h.svc.Refresh(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(refreshResponse{
		AccessToken:  out.AccessToken.Value,
		RefreshToken: out.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    out.AccessToken.ExpiresAt,
	})
}

// Logout handles POST /v1/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	token, err := middleware.BearerToken(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), token); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "logged out"})
}

func deviceInfo(c *fiber.Ctx, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return c.Get(fiber.HeaderUserAgent)
}
