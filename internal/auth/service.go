// Package auth orchestrates OTP-gated registration, login and the session
// refresh and logout flows.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/logging"
	"github.com/bazaarino/bazaar/internal/notification"
	"github.com/bazaarino/bazaar/internal/otp"
	"github.com/bazaarino/bazaar/internal/session"
)

var (
	// ErrAlreadyRegistered is returned when registering a phone whose principal is past pending.
	ErrAlreadyRegistered = apperr.Validation("phone already registered")
	// ErrAlreadyVerified is returned when verifying a principal that is no longer pending.
	ErrAlreadyVerified = apperr.Validation("account already verified")
	// ErrPrincipalNotFound is returned when a verified phone has no matching principal.
	ErrPrincipalNotFound = apperr.NotFound("no account registered for this phone")
	// ErrRoleRequired is returned when a phone belongs to both kinds and no role was given.
	ErrRoleRequired = apperr.Validation("role is required for this phone")
)

// Options tunes the orchestrator.
type Options struct {
	PhoneRegion string
	OTPTTL      time.Duration
}

// Service drives registration, verification and session flows.
type Service struct {
	principals identity.Repository
	codes      *otp.Registry
	sessions   *session.Ledger
	notifier   notification.Notifier
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

// NewService wires the auth orchestrator.
func NewService(principals identity.Repository, codes *otp.Registry, sessions *session.Ledger, notifier notification.Notifier, opts Options, logger *slog.Logger) *Service {
	return &Service{
		principals: principals,
		codes:      codes,
		sessions:   sessions,
		notifier:   notifier,
		opts:       opts,
		logger:     logging.Component(logger, "auth"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterResult acknowledges a registration.
type RegisterResult struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Result is returned by the flows that open a session.
type Result struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Roles            []string  `json:"roles"`
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RequestOTP issues and delivers a fresh code for phone. The outcome never
// depends on whether the phone is registered.
func (s *Service) RequestOTP(ctx context.Context, rawPhone string) error {
	phone, err := NormalizePhone(rawPhone, s.opts.PhoneRegion)
	if err != nil {
		return err
	}
	return s.sendCode(ctx, phone)
}

func (s *Service) sendCode(ctx context.Context, phone string) error {
	code, err := s.codes.Issue(ctx, phone)
	if err != nil {
		return err
	}
	if err := s.notifier.Send(ctx, notification.OTPMessage(phone, code, s.opts.OTPTTL)); err != nil {
		s.logger.Error("otp delivery failed", slog.String("phone", phone), slog.Any("error", err))
		return apperr.Internal("deliver otp", err)
	}
	return nil
}

// Register creates a pending principal of the requested role and sends it a
// code. Registering again while still pending only re-sends the code.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := req.Validate(); err != nil {
		return RegisterResult{}, err
	}
	phone, err := NormalizePhone(req.Phone, s.opts.PhoneRegion)
	if err != nil {
		return RegisterResult{}, err
	}
	kind := identity.Kind(req.Role)

	candidates, err := s.principals.FindByPhone(ctx, phone)
	if err != nil {
		return RegisterResult{}, err
	}
	for _, existing := range candidates {
		if existing.Kind != kind {
			continue
		}
		if existing.Status != identity.StatusPending {
			return RegisterResult{}, ErrAlreadyRegistered
		}
		if err := s.sendCode(ctx, phone); err != nil {
			return RegisterResult{}, err
		}
		s.logger.Info("registration resumed", slog.String("principal_id", existing.ID), slog.String("kind", string(kind)))
		return RegisterResult{ID: existing.ID, Message: "verification code sent"}, nil
	}

	now := s.now()
	p := identity.Principal{
		ID:        uuid.NewString(),
		Kind:      kind,
		Phone:     phone,
		Name:      req.Name,
		Roles:     []identity.Role{identity.Role(req.Role)},
		Status:    identity.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == identity.KindVendor {
		p.Vendor = &identity.VendorProfile{
			Name:        req.Name,
			OwnerName:   req.OwnerName,
			Address:     req.Address,
			Location:    req.Location,
			City:        req.City,
			Province:    req.Province,
			CategoryIDs: append([]string(nil), req.CategoryIDs...),
		}
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, identity.ErrPhoneTaken) {
			return RegisterResult{}, ErrAlreadyRegistered
		}
		return RegisterResult{}, err
	}
	s.logger.Info("principal registered", slog.String("principal_id", p.ID), slog.String("kind", string(kind)))

	if err := s.sendCode(ctx, phone); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{ID: p.ID, Message: "verification code sent"}, nil
}

// VerifyRegistration consumes the code, activates the pending principal and
// opens its first session. If opening the session fails the principal stays
// active; Login is the recovery path.
func (s *Service) VerifyRegistration(ctx context.Context, req VerifyRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	phone, err := NormalizePhone(req.Phone, s.opts.PhoneRegion)
	if err != nil {
		return Result{}, err
	}
	if err := s.codes.Verify(ctx, phone, req.OTP); err != nil {
		return Result{}, err
	}

	candidates, err := s.candidates(ctx, phone, req.Role)
	if err != nil {
		return Result{}, err
	}
	if len(candidates) == 0 {
		return Result{}, ErrPrincipalNotFound
	}
	var pending []identity.Principal
	for _, p := range candidates {
		if p.Status == identity.StatusPending {
			pending = append(pending, p)
		}
	}
	switch len(pending) {
	case 0:
		return Result{}, ErrAlreadyVerified
	case 1:
	default:
		return Result{}, ErrRoleRequired
	}

	now := s.now()
	p := pending[0].WithStatus(identity.StatusActive, now)
	if err := s.principals.UpdateStatus(ctx, p.ID, p.Status, now); err != nil {
		return Result{}, err
	}
	s.logger.Info("principal activated", slog.String("principal_id", p.ID))
	return s.open(ctx, p, req.DeviceInfo)
}

// Login opens a new session for an already active principal after checking a
// code previously sent through RequestOTP.
func (s *Service) Login(ctx context.Context, req VerifyRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	phone, err := NormalizePhone(req.Phone, s.opts.PhoneRegion)
	if err != nil {
		return Result{}, err
	}
	if err := s.codes.Verify(ctx, phone, req.OTP); err != nil {
		return Result{}, err
	}

	candidates, err := s.candidates(ctx, phone, req.Role)
	if err != nil {
		return Result{}, err
	}
	var active []identity.Principal
	for _, p := range candidates {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return Result{}, apperr.Unauthenticated(errors.New("no active principal for phone"))
	case 1:
		return s.open(ctx, active[0], req.DeviceInfo)
	default:
		return Result{}, ErrRoleRequired
	}
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.Refreshed, error) {
	return s.sessions.Refresh(ctx, refreshToken)
}

// Logout revokes the session bound to accessToken.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return session.ErrNotFound
	}
	return s.sessions.RevokeToken(ctx, accessToken)
}

func (s *Service) candidates(ctx context.Context, phone, role string) ([]identity.Principal, error) {
	all, err := s.principals.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return all, nil
	}
	out := all[:0]
	for _, p := range all {
		if p.Kind == identity.Kind(role) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) open(ctx context.Context, p identity.Principal, deviceInfo string) (Result, error) {
	issued, err := s.sessions.Start(ctx, p, deviceInfo)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ID:               p.ID,
		Kind:             string(p.Kind),
		Roles:            p.RoleNames(),
		SessionID:        issued.SessionID,
		AccessToken:      issued.AccessToken.Value,
		RefreshToken:     issued.RefreshToken.Value,
		TokenType:        "bearer",
		ExpiresAt:        issued.AccessToken.ExpiresAt,
		RefreshExpiresAt: issued.RefreshToken.ExpiresAt,
	}, nil
}
