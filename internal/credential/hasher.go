// Package credential hashes and verifies secrets (one-time codes) so they are
// never stored in plain text.
package credential

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when a secret does not match its stored hash.
var ErrMismatch = errors.New("credential mismatch")

// Hasher hashes secrets with bcrypt.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher clamped to bcrypt's supported cost range.
// A non-positive cost selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("credential: empty secret")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares secret against hash in constant time. It returns
// ErrMismatch for a wrong secret and the underlying error for a corrupt hash.
func (h *Hasher) Verify(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
