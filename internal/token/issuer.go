// Package token mints and decodes signed, time-bound access and refresh
// tokens. It holds no state beyond its keys and never touches storage.
package token

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/logging"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrExpired is returned for a well-formed token past its exp claim.
	ErrExpired = apperr.Validation("token expired")
	// ErrInvalid is returned for malformed tokens, bad signatures and wrong kinds.
	ErrInvalid = apperr.Validation("token invalid")
)

// Claims is the payload embedded in every token.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Kind  Kind     `json:"typ"`
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Options configures an Issuer.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs tokens with HS256 using a separate secret per kind.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewIssuer validates opts and returns an Issuer.
func NewIssuer(opts Options, logger *slog.Logger) (*Issuer, error) {
	if opts.AccessSecret == "" || opts.RefreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if opts.AccessSecret == opts.RefreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		return nil, errors.New("token: ttl must be positive")
	}
	return &Issuer{
		accessSecret:  []byte(opts.AccessSecret),
		refreshSecret: []byte(opts.RefreshSecret),
		issuer:        opts.Issuer,
		accessTTL:     opts.AccessTTL,
		refreshTTL:    opts.RefreshTTL,
		logger:        logging.Component(logger, "token"),
		now:           time.Now,
	}, nil
}

// Issue mints a token of the given kind for subject carrying roles.
func (i *Issuer) Issue(subject string, roles []string, kind Kind) (Token, error) {
	secret, ttl, err := i.keyFor(kind)
	if err != nil {
		return Token{}, err
	}
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			// jti keeps two tokens minted in the same second distinct
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles: append([]string(nil), roles...),
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Token{}, apperr.Internal("sign token", err)
	}
	// NumericDate drops sub-second precision; report what the token carries
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time.UTC()}, nil
}

// Decode verifies signature, expiry and kind and returns the claims. Expired
// and invalid tokens yield ErrExpired and ErrInvalid; both are logged with a
// distinct reason.
func (i *Issuer) Decode(tokenString string, kind Kind) (Claims, error) {
	secret, _, err := i.keyFor(kind)
	if err != nil {
		return Claims{}, err
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	var claims Claims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, parserOpts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		i.logger.Debug("token rejected", slog.String("kind", string(kind)), slog.String("reason", "expired"))
		return Claims{}, ErrExpired
	case err != nil:
		i.logger.Debug("token rejected", slog.String("kind", string(kind)), slog.String("reason", "invalid"), slog.Any("error", err))
		return Claims{}, ErrInvalid
	}
	if claims.Kind != kind || claims.Subject == "" {
		i.logger.Debug("token rejected", slog.String("kind", string(kind)), slog.String("reason", "invalid"), slog.String("claimed_kind", string(claims.Kind)))
		return Claims{}, ErrInvalid
	}
	return claims, nil
}

// AccessTTL is the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL is the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

func (i *Issuer) keyFor(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case KindAccess:
		return i.accessSecret, i.accessTTL, nil
	case KindRefresh:
		return i.refreshSecret, i.refreshTTL, nil
	default:
		return nil, 0, ErrInvalid
	}
}
