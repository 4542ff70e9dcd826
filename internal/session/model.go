// Package session is the ledger of issued token pairs. It is the source of
// truth for revocation and expiry and is consulted on every authenticated request.
package session

import (
	"time"

	"github.com/bazaarino/bazaar/internal/apperr"
)

// Status is a session lifecycle state. Expired and revoked are terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

var (
	// ErrNotFound is returned when no session matches the lookup.
	ErrNotFound = apperr.NotFound("session not found")
	// ErrDuplicateToken is returned when an access token already has a session row.
	ErrDuplicateToken = apperr.Validation("access token already bound to a session")
)

// Session binds an issued token pair to a principal.
type Session struct {
	ID           string
	PrincipalID  string
	AccessToken  string
	RefreshToken string
	Status       Status
	DeviceInfo   string
	// ExpiresAt is the end of the session and of its refresh token.
	ExpiresAt time.Time
	// AccessExpiresAt is the expiry of the current access token.
	AccessExpiresAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether the session lifetime has elapsed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LiveAt reports whether the session's access token may be honoured at now.
func (s Session) LiveAt(now time.Time) bool {
	return s.Status == StatusActive && !s.Expired(now) && now.Before(s.AccessExpiresAt)
}
