package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/credential"
	"github.com/bazaarino/bazaar/internal/logging"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly distributed 6-digit numeric code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// Registry issues and verifies codes against a Store.
type Registry struct {
	store  Store
	hasher *credential.Hasher
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry builds a registry whose codes live for ttl.
func NewRegistry(store Store, hasher *credential.Hasher, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		hasher: hasher,
		ttl:    ttl,
		logger: logging.Component(logger, "otp"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue generates a fresh code for phone, stores it and returns the plain
// code for out-of-band delivery.
func (r *Registry) Issue(ctx context.Context, phone string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", apperr.Internal("generate otp", err)
	}
	if err := r.Save(ctx, phone, code); err != nil {
		return "", err
	}
	return code, nil
}

// Save upserts code for phone with a fresh expiry, invalidating any earlier code.
func (r *Registry) Save(ctx context.Context, phone, code string) error {
	hash, err := r.hasher.Hash(code)
	if err != nil {
		return apperr.Internal("hash otp", err)
	}
	now := r.now()
	rec := Record{Phone: phone, CodeHash: hash, ExpiresAt: now.Add(r.ttl), CreatedAt: now}
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("save otp failed", slog.String("phone", phone), slog.Any("error", err))
		return apperr.Internal("save otp", err)
	}
	return nil
}

// Verify accepts code for phone at most once. A matching code is deleted
// before success is returned so it cannot be replayed.
func (r *Registry) Verify(ctx context.Context, phone, code string) error {
	rec, err := r.store.Get(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		r.logger.Debug("otp rejected", slog.String("phone", phone), slog.String("reason", "absent"))
		return ErrInvalidCode
	}
	if err != nil {
		r.logger.Error("load otp failed", slog.String("phone", phone), slog.Any("error", err))
		return apperr.Internal("load otp", err)
	}
	if rec.Expired(r.now()) {
		r.logger.Debug("otp rejected", slog.String("phone", phone), slog.String("reason", "expired"))
		return ErrInvalidCode
	}
	if err := r.hasher.Verify(rec.CodeHash, code); err != nil {
		if !errors.Is(err, credential.ErrMismatch) {
			r.logger.Warn("otp hash unreadable", slog.String("phone", phone), slog.Any("error", err))
		}
		r.logger.Debug("otp rejected", slog.String("phone", phone), slog.String("reason", "mismatch"))
		return ErrInvalidCode
	}

	removed, err := r.store.Consume(ctx, phone, rec.CodeHash)
	if err != nil {
		r.logger.Error("consume otp failed", slog.String("phone", phone), slog.Any("error", err))
		return apperr.Internal("consume otp", err)
	}
	if !removed {
		// a concurrent verify or a newer code got there first
		r.logger.Debug("otp rejected", slog.String("phone", phone), slog.String("reason", "consumed"))
		return ErrInvalidCode
	}
	return nil
}
