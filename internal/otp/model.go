// Package otp issues and verifies short-lived one-time codes keyed by phone
// number. At most one code is outstanding per phone.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/bazaarino/bazaar/internal/apperr"
)

var (
	// ErrInvalidCode is returned for a missing, mismatched or expired code.
	// The three cases are indistinguishable to callers.
	ErrInvalidCode = apperr.Validation("invalid or expired verification code")

	// ErrNotFound is returned by stores when no code exists for a phone.
	ErrNotFound = errors.New("otp not found")
)

// Record is the stored state of an outstanding code. The code itself is kept
// only as a hash.
type Record struct {
	Phone     string
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is no longer acceptable at now.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Store persists OTP records keyed by phone.
type Store interface {
	// Save upserts the record, replacing any earlier code for the phone.
	Save(ctx context.Context, rec Record) error
	// Get returns the record for phone or ErrNotFound.
	Get(ctx context.Context, phone string) (Record, error)
	// Consume deletes the record for phone only if it still carries codeHash.
	// It reports whether a record was removed.
	Consume(ctx context.Context, phone, codeHash string) (bool, error)
}
