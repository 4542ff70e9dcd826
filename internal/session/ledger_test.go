package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/logging"
	"github.com/bazaarino/bazaar/internal/token"
)

type fixture struct {
	ledger     *Ledger
	repo       Repository
	principals identity.Repository
	principal  identity.Principal
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	issuer, err := token.NewIssuer(token.Options{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, logging.Discard())
	require.NoError(t, err)

	principals := identity.NewMemoryRepository()
	p := identity.Principal{
		ID:     uuid.NewString(),
		Kind:   identity.KindUser,
		Phone:  "+989121110000",
		Roles:  []identity.Role{identity.RoleUser},
		Status: identity.StatusActive,
	}
	require.NoError(t, principals.Create(ctx, p))

	repo := NewMemoryRepository()
	return fixture{
		ledger:     NewLedger(repo, principals, issuer, logging.Discard()),
		repo:       repo,
		principals: principals,
		principal:  p,
	}
}

func (f fixture) advance(d time.Duration) {
	base := time.Now().UTC()
	f.ledger.now = func() time.Time { return base.Add(d) }
}

func TestOpenRejectsDuplicateAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := OpenParams{
		PrincipalID: f.principal.ID,
		AccessToken: "same-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}

	_, err := f.ledger.Open(ctx, params)
	require.NoError(t, err)
	_, err = f.ledger.Open(ctx, params)
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestStartAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.ledger.Start(ctx, f.principal, "pixel-8")
	require.NoError(t, err)

	p, s, err := f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	require.NoError(t, err)
	assert.Equal(t, f.principal.ID, p.ID)
	assert.Equal(t, issued.SessionID, s.ID)
	assert.Equal(t, "pixel-8", s.DeviceInfo)
	assert.Equal(t, issued.RefreshToken.ExpiresAt, s.ExpiresAt)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.ledger.Authenticate(context.Background(), "garbage")
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestAuthenticateEnforcesExpiryBeforeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)
	_, _, err = f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	s, err := f.repo.FindByID(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, s.Status)
}

func TestAuthenticateRejectsLapsedAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	f.advance(time.Hour)
	_, _, err = f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	s, err := f.repo.FindByID(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s.Status, "session outlives its access token")
}

func TestRevokeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	require.NoError(t, f.ledger.RevokeToken(ctx, issued.AccessToken.Value))
	require.NoError(t, f.ledger.Revoke(ctx, issued.SessionID))

	s, err := f.repo.FindByID(ctx, issued.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, s.Status)

	_, _, err = f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	assert.ErrorIs(t, f.ledger.RevokeToken(ctx, "unknown"), ErrNotFound)
}

func TestRefreshRotatesAccessTokenOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	out, err := f.ledger.Refresh(ctx, issued.RefreshToken.Value)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, out.SessionID)
	assert.Equal(t, issued.RefreshToken.Value, out.RefreshToken)
	assert.NotEqual(t, issued.AccessToken.Value, out.AccessToken.Value)

	_, _, err = f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	_, s, err := f.ledger.Authenticate(ctx, out.AccessToken.Value)
	require.NoError(t, err)
	assert.Equal(t, issued.SessionID, s.ID)
}

func TestRefreshRejectsAccessTokenAndRevokedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	_, err = f.ledger.Refresh(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))

	require.NoError(t, f.ledger.Revoke(ctx, issued.SessionID))
	_, err = f.ledger.Refresh(ctx, issued.RefreshToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestDeactivatedPrincipalCannotAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)

	require.NoError(t, f.principals.UpdateStatus(ctx, f.principal.ID, identity.StatusDeactivated, time.Now()))
	_, _, err = f.ledger.Authenticate(ctx, issued.AccessToken.Value)
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
}

func TestSweepExpiredLeavesRevokedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lapsed, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)
	revoked, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)
	require.NoError(t, f.ledger.Revoke(ctx, revoked.SessionID))

	f.advance(8 * 24 * time.Hour)
	n, err := f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s, err := f.repo.FindByID(ctx, lapsed.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, s.Status)
	s, err = f.repo.FindByID(ctx, revoked.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, s.Status)
}

func TestRunSweeperExpiresUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	issued, err := f.ledger.Start(ctx, f.principal, "")
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)

	done := make(chan struct{})
	go func() {
		f.ledger.RunSweeper(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		s, err := f.repo.FindByID(context.Background(), issued.SessionID)
		return err == nil && s.Status == StatusExpired
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
