package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarino/bazaar/internal/apperr"
)

// Repository persists sessions.
type Repository interface {
	// Create inserts s, failing with ErrDuplicateToken if its access token is already bound.
	Create(ctx context.Context, s Session) error
	FindByID(ctx context.Context, id string) (Session, error)
	FindByAccessToken(ctx context.Context, accessToken string) (Session, error)
	FindByRefreshToken(ctx context.Context, principalID, refreshToken string) (Session, error)
	// Transition moves an active session to status and returns the stored row.
	// Sessions that are no longer active are returned unchanged.
	Transition(ctx context.Context, id string, status Status, at time.Time) (Session, error)
	// RotateAccess replaces the access token of an active session.
	RotateAccess(ctx context.Context, id, accessToken string, accessExpiresAt, at time.Time) error
	// ExpireBefore marks every active session whose lifetime ended before now as expired.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

// PostgresRepository stores sessions in the sessions table. The unique index
// on access_token is the duplicate-token guard.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed session repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, principal_id, access_token, COALESCE(refresh_token, ''), status,
    COALESCE(device_info, ''), expires_at, access_expires_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return apperr.Validation("invalid session id")
	}
	principalID, err := uuid.Parse(s.PrincipalID)
	if err != nil {
		return apperr.Validation("invalid principal id")
	}
	_, err = r.db.Exec(ctx, `INSERT INTO sessions (id, principal_id, access_token, refresh_token, status,
        device_info, expires_at, access_expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9, $10)`,
		id, principalID, s.AccessToken, s.RefreshToken, string(s.Status), s.DeviceInfo,
		s.ExpiresAt.UTC(), s.AccessExpiresAt.UTC(), s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateToken
		}
		return apperr.Internal("insert session", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Session, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return Session{}, ErrNotFound
	}
	return r.findOne(ctx, "find session", `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sid)
}

func (r *PostgresRepository) FindByAccessToken(ctx context.Context, accessToken string) (Session, error) {
	return r.findOne(ctx, "find session by access token",
		`SELECT `+sessionColumns+` FROM sessions WHERE access_token = $1`, accessToken)
}

func (r *PostgresRepository) FindByRefreshToken(ctx context.Context, principalID, refreshToken string) (Session, error) {
	pid, err := uuid.Parse(principalID)
	if err != nil {
		return Session{}, ErrNotFound
	}
	return r.findOne(ctx, "find session by refresh token",
		`SELECT `+sessionColumns+` FROM sessions WHERE principal_id = $1 AND refresh_token = $2`, pid, refreshToken)
}

func (r *PostgresRepository) Transition(ctx context.Context, id string, status Status, at time.Time) (Session, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return Session{}, ErrNotFound
	}
	if _, err := r.db.Exec(ctx, `UPDATE sessions SET status = $2, updated_at = $3
        WHERE id = $1 AND status = 'active'`, sid, string(status), at.UTC()); err != nil {
		return Session{}, apperr.Internal("update session status", err)
	}
	return r.FindByID(ctx, id)
}

func (r *PostgresRepository) RotateAccess(ctx context.Context, id, accessToken string, accessExpiresAt, at time.Time) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET access_token = $2, access_expires_at = $3, updated_at = $4
        WHERE id = $1 AND status = 'active'`, sid, accessToken, accessExpiresAt.UTC(), at.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateToken
		}
		return apperr.Internal("rotate access token", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET status = 'expired', updated_at = $1
        WHERE status = 'active' AND expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, apperr.Internal("expire sessions", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) findOne(ctx context.Context, op, query string, args ...any) (Session, error) {
	var (
		s           Session
		id          uuid.UUID
		principalID uuid.UUID
		status      string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(&id, &principalID, &s.AccessToken, &s.RefreshToken,
		&status, &s.DeviceInfo, &s.ExpiresAt, &s.AccessExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, apperr.Internal(op, err)
	}
	s.ID = id.String()
	s.PrincipalID = principalID.String()
	s.Status = Status(status)
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.AccessExpiresAt = s.AccessExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
