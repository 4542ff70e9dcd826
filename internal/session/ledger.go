package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/logging"
	"github.com/bazaarino/bazaar/internal/token"
)

// PrincipalFinder loads principals by id.
type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (identity.Principal, error)
}

// OpenParams describes a session to record.
type OpenParams struct {
	PrincipalID     string
	AccessToken     string
	RefreshToken    string
	ExpiresAt       time.Time
	AccessExpiresAt time.Time
	DeviceInfo      string
}

// Issued is a freshly minted token pair bound to a new session.
type Issued struct {
	SessionID    string
	AccessToken  token.Token
	RefreshToken token.Token
}

// Refreshed is the result of exchanging a refresh token.
type Refreshed struct {
	SessionID    string
	AccessToken  token.Token
	RefreshToken string
}

// Ledger owns the session lifecycle.
type Ledger struct {
	repo       Repository
	principals PrincipalFinder
	tokens     *token.Issuer
	logger     *slog.Logger
	now        func() time.Time
}

// NewLedger wires the session ledger.
func NewLedger(repo Repository, principals PrincipalFinder, tokens *token.Issuer, logger *slog.Logger) *Ledger {
	return &Ledger{
		repo:       repo,
		principals: principals,
		tokens:     tokens,
		logger:     logging.Component(logger, "session"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Open records a new active session and returns its id.
func (l *Ledger) Open(ctx context.Context, p OpenParams) (string, error) {
	if p.PrincipalID == "" || p.AccessToken == "" {
		return "", apperr.Validation("principal and access token are required")
	}
	now := l.now()
	if p.AccessExpiresAt.IsZero() || p.AccessExpiresAt.After(p.ExpiresAt) {
		p.AccessExpiresAt = p.ExpiresAt
	}
	s := Session{
		ID:              uuid.NewString(),
		PrincipalID:     p.PrincipalID,
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		Status:          StatusActive,
		DeviceInfo:      p.DeviceInfo,
		ExpiresAt:       p.ExpiresAt.UTC(),
		AccessExpiresAt: p.AccessExpiresAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.repo.Create(ctx, s); err != nil {
		return "", err
	}
	l.logger.Info("session opened", slog.String("session_id", s.ID), slog.String("principal_id", s.PrincipalID))
	return s.ID, nil
}

// Start mints an access and refresh token for p and opens a session for them.
func (l *Ledger) Start(ctx context.Context, p identity.Principal, deviceInfo string) (Issued, error) {
	access, err := l.tokens.Issue(p.ID, p.RoleNames(), token.KindAccess)
	if err != nil {
		return Issued{}, err
	}
	refresh, err := l.tokens.Issue(p.ID, p.RoleNames(), token.KindRefresh)
	if err != nil {
		return Issued{}, err
	}
	id, err := l.Open(ctx, OpenParams{
		PrincipalID:     p.ID,
		AccessToken:     access.Value,
		RefreshToken:    refresh.Value,
		ExpiresAt:       refresh.ExpiresAt,
		AccessExpiresAt: access.ExpiresAt,
		DeviceInfo:      deviceInfo,
	})
	if err != nil {
		return Issued{}, err
	}
	return Issued{SessionID: id, AccessToken: access, RefreshToken: refresh}, nil
}

// Authenticate resolves an access token to its principal and session. Every
// credential failure yields the same unauthenticated error; the reason is logged.
func (l *Ledger) Authenticate(ctx context.Context, accessToken string) (identity.Principal, Session, error) {
	claims, err := l.tokens.Decode(accessToken, token.KindAccess)
	if err != nil {
		return identity.Principal{}, Session{}, apperr.Unauthenticated(err)
	}
	s, err := l.repo.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return identity.Principal{}, Session{}, l.reject(err, "no session")
	}
	if s.PrincipalID != claims.Subject {
		return identity.Principal{}, Session{}, l.reject(nil, "subject mismatch")
	}
	now := l.now()
	if s.Status == StatusActive && s.Expired(now) {
		l.expire(ctx, s, now)
		return identity.Principal{}, Session{}, l.reject(nil, "session expired")
	}
	if !s.LiveAt(now) {
		return identity.Principal{}, Session{}, l.reject(nil, "session "+string(s.Status))
	}
	p, err := l.principals.FindByID(ctx, s.PrincipalID)
	if err != nil {
		return identity.Principal{}, Session{}, l.reject(err, "principal missing")
	}
	if !p.IsActive() {
		return identity.Principal{}, Session{}, l.reject(nil, "principal "+string(p.Status))
	}
	return p, s, nil
}

// Revoke marks the session revoked. Revoking a session that is already
// revoked or expired is a no-op.
func (l *Ledger) Revoke(ctx context.Context, sessionID string) error {
	s, err := l.repo.Transition(ctx, sessionID, StatusRevoked, l.now())
	if err != nil {
		return err
	}
	l.logger.Info("session revoked", slog.String("session_id", s.ID), slog.String("status", string(s.Status)))
	return nil
}

// RevokeToken revokes the session bound to accessToken.
func (l *Ledger) RevokeToken(ctx context.Context, accessToken string) error {
	s, err := l.repo.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return err
	}
	return l.Revoke(ctx, s.ID)
}

// Refresh exchanges a valid refresh token for a new access token. The session
// keeps its refresh token and lifetime; only the access token is replaced.
func (l *Ledger) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	claims, err := l.tokens.Decode(refreshToken, token.KindRefresh)
	if err != nil {
		return Refreshed{}, apperr.Unauthenticated(err)
	}
	s, err := l.repo.FindByRefreshToken(ctx, claims.Subject, refreshToken)
	if err != nil {
		return Refreshed{}, l.reject(err, "no session for refresh token")
	}
	now := l.now()
	if s.Status == StatusActive && s.Expired(now) {
		l.expire(ctx, s, now)
		return Refreshed{}, l.reject(nil, "session expired")
	}
	if s.Status != StatusActive {
		return Refreshed{}, l.reject(nil, "session "+string(s.Status))
	}
	p, err := l.principals.FindByID(ctx, s.PrincipalID)
	if err != nil {
		return Refreshed{}, l.reject(err, "principal missing")
	}
	if !p.IsActive() {
		return Refreshed{}, l.reject(nil, "principal "+string(p.Status))
	}

	access, err := l.tokens.Issue(p.ID, p.RoleNames(), token.KindAccess)
	if err != nil {
		return Refreshed{}, err
	}
	if access.ExpiresAt.After(s.ExpiresAt) {
		access.ExpiresAt = s.ExpiresAt
	}
	if err := l.repo.RotateAccess(ctx, s.ID, access.Value, access.ExpiresAt, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Refreshed{}, l.reject(err, "session closed during refresh")
		}
		return Refreshed{}, err
	}
	l.logger.Info("session refreshed", slog.String("session_id", s.ID), slog.String("principal_id", p.ID))
	return Refreshed{SessionID: s.ID, AccessToken: access, RefreshToken: s.RefreshToken}, nil
}

// SweepExpired marks every lapsed active session as expired and returns how many changed.
func (l *Ledger) SweepExpired(ctx context.Context) (int64, error) {
	n, err := l.repo.ExpireBefore(ctx, l.now())
	if err != nil {
		l.logger.Error("session sweep failed", slog.Any("error", err))
		return 0, err
	}
	if n > 0 {
		l.logger.Info("expired sessions swept", slog.Int64("count", n))
	}
	return n, nil
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	l.logger.Info("session sweeper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			_, _ = l.SweepExpired(ctx)
		}
	}
}

func (l *Ledger) expire(ctx context.Context, s Session, now time.Time) {
	if _, err := l.repo.Transition(ctx, s.ID, StatusExpired, now); err != nil {
		l.logger.Warn("lazy session expiry failed", slog.String("session_id", s.ID), slog.Any("error", err))
	}
}

// reject converts a credential failure into the generic unauthenticated
// error. Storage failures keep their internal kind.
func (l *Ledger) reject(cause error, reason string) error {
	if cause != nil && apperr.IsKind(cause, apperr.KindInternal) {
		return cause
	}
	l.logger.Debug("credentials rejected", slog.String("reason", reason))
	if cause == nil {
		cause = errors.New(reason)
	}
	return apperr.Unauthenticated(cause)
}
