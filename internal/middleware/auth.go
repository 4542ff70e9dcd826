package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/session"
)

const (
	localPrincipal = "principal"
	localSession   = "session"
)

// ErrForbidden is returned when the principal lacks every required role.
var ErrForbidden = apperr.Unauthorized("insufficient role")

// Authenticator resolves an access token to its principal and session.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (identity.Principal, session.Session, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	scheme, token, ok := strings.Cut(authz, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", apperr.Unauthenticated(errors.New("missing bearer token"))
	}
	return token, nil
}

// Authenticate requires a bearer access token backed by a live session and
// stores the principal and session on the request.
func Authenticate(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := BearerToken(c)
		if err != nil {
			return err
		}
		p, s, err := auth.Authenticate(c.UserContext(), token)
		if err != nil {
			return err
		}
		c.Locals(localPrincipal, p)
		c.Locals(localSession, s)
		return c.Next()
	}
}

// CurrentPrincipal returns the principal stored by Authenticate.
func CurrentPrincipal(c *fiber.Ctx) (identity.Principal, bool) {
	p, ok := c.Locals(localPrincipal).(identity.Principal)
	return p, ok
}

// CurrentSession returns the session stored by Authenticate.
func CurrentSession(c *fiber.Ctx) (session.Session, bool) {
	s, ok := c.Locals(localSession).(session.Session)
	return s, ok
}

// RequireRole admits principals holding at least one of roles. It must run
// after Authenticate.
func RequireRole(roles ...identity.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := CurrentPrincipal(c)
		if !ok {
			return apperr.Unauthenticated(errors.New("no principal on request"))
		}
		for _, r := range roles {
			if p.HasRole(r) {
				return c.Next()
			}
		}
		return ErrForbidden
	}
}
