package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazaarino/bazaar/internal/apperr"
)

var (
	// ErrNotFound is returned when no principal matches.
	ErrNotFound = apperr.NotFound("principal not found")
	// ErrPhoneTaken is returned when a principal of the same kind already uses the phone.
	ErrPhoneTaken = apperr.Validation("phone already registered")
)

const uniqueViolation = "23505"

// Repository persists principals of both kinds.
type Repository interface {
	Create(ctx context.Context, p Principal) error
	FindByID(ctx context.Context, id string) (Principal, error)
	// FindByPhone returns every principal (of either kind) registered with phone.
	FindByPhone(ctx context.Context, phone string) ([]Principal, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	// AddRole grants role to the principal; granting a held role is a no-op.
	AddRole(ctx context.Context, id string, role Role, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepository stores users and vendors in their own tables and reads
// them back through a single polymorphic query.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectPrincipals = `
SELECT id, 'user' AS kind, phone, name, roles, status,
       '' AS owner_name, '' AS address, '' AS location, '' AS city, '' AS province,
       '{}'::text[] AS category_ids, 0::bigint AS wallet_balance, created_at, updated_at
FROM users WHERE %[1]s
UNION ALL
SELECT id, 'vendor' AS kind, phone, name, roles, status,
       owner_name, address, location, city, province,
       category_ids, wallet_balance, created_at, updated_at
FROM vendors WHERE %[1]s`

// Create inserts p into the table for its kind.
func (r *PostgresRepository) Create(ctx context.Context, p Principal) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return apperr.Validation("invalid principal id")
	}
	switch p.Kind {
	case KindUser:
		_, err = r.db.Exec(ctx, `INSERT INTO users (id, phone, name, roles, status, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, p.Phone, p.Name, p.RoleNames(), string(p.Status), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	case KindVendor:
		if p.Vendor == nil {
			return apperr.Validation("vendor profile is required")
		}
		v := p.Vendor
		_, err = r.db.Exec(ctx, `INSERT INTO vendors (id, phone, name, roles, status, owner_name, address, location,
            city, province, category_ids, wallet_balance, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13)`,
			id, p.Phone, v.Name, p.RoleNames(), string(p.Status), v.OwnerName, v.Address, v.Location,
			v.City, v.Province, v.CategoryIDs, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	default:
		return apperr.Validation("unknown principal kind")
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPhoneTaken
		}
		return apperr.Internal("insert principal", err)
	}
	return nil
}

// FindByID looks the id up across both kinds.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Principal, error) {
	pid, err := uuid.Parse(id)
	if err != nil {
		return Principal{}, ErrNotFound
	}
	rows, err := r.db.Query(ctx, principalQuery("id = $1"), pid)
	if err != nil {
		return Principal{}, apperr.Internal("find principal", err)
	}
	found, err := collectPrincipals(rows)
	if err != nil {
		return Principal{}, apperr.Internal("scan principal", err)
	}
	if len(found) == 0 {
		return Principal{}, ErrNotFound
	}
	return found[0], nil
}

// FindByPhone returns all principals registered with phone.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) ([]Principal, error) {
	rows, err := r.db.Query(ctx, principalQuery("phone = $1"), phone)
	if err != nil {
		return nil, apperr.Internal("find principal by phone", err)
	}
	found, err := collectPrincipals(rows)
	if err != nil {
		return nil, apperr.Internal("scan principal", err)
	}
	return found, nil
}

// UpdateStatus sets the lifecycle status of whichever record carries id.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	const query = `
WITH u AS (UPDATE users SET status = $2, updated_at = $3 WHERE id = $1 RETURNING id),
     v AS (UPDATE vendors SET status = $2, updated_at = $3 WHERE id = $1 RETURNING id)
SELECT (SELECT count(*) FROM u) + (SELECT count(*) FROM v)`
	var n int64
	if err := r.db.QueryRow(ctx, query, pid, string(status), at.UTC()).Scan(&n); err != nil {
		return apperr.Internal("update principal status", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRole appends role to whichever record carries id.
func (r *PostgresRepository) AddRole(ctx context.Context, id string, role Role, at time.Time) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	const query = `
WITH u AS (UPDATE users SET roles = CASE WHEN $2::text = ANY(roles) THEN roles ELSE array_append(roles, $2::text) END,
               updated_at = $3 WHERE id = $1 RETURNING id),
     v AS (UPDATE vendors SET roles = CASE WHEN $2::text = ANY(roles) THEN roles ELSE array_append(roles, $2::text) END,
               updated_at = $3 WHERE id = $1 RETURNING id)
SELECT (SELECT count(*) FROM u) + (SELECT count(*) FROM v)`
	var n int64
	if err := r.db.QueryRow(ctx, query, pid, string(role), at.UTC()).Scan(&n); err != nil {
		return apperr.Internal("add principal role", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record carrying id. Vendor transactions cascade; sessions do not.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	pid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	const query = `
WITH u AS (DELETE FROM users WHERE id = $1 RETURNING id),
     v AS (DELETE FROM vendors WHERE id = $1 RETURNING id)
SELECT (SELECT count(*) FROM u) + (SELECT count(*) FROM v)`
	var n int64
	if err := r.db.QueryRow(ctx, query, pid).Scan(&n); err != nil {
		return apperr.Internal("delete principal", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func principalQuery(where string) string {
	return fmt.Sprintf(selectPrincipals, where)
}

func collectPrincipals(rows pgx.Rows) ([]Principal, error) {
	defer rows.Close()
	var out []Principal
	for rows.Next() {
		var (
			id        uuid.UUID
			kind      string
			status    string
			roles     []string
			p         Principal
			v         VendorProfile
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &kind, &p.Phone, &p.Name, &roles, &status,
			&v.OwnerName, &v.Address, &v.Location, &v.City, &v.Province,
			&v.CategoryIDs, &v.WalletBalance, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.ID = id.String()
		p.Kind = Kind(kind)
		p.Status = Status(status)
		p.Roles = make([]Role, len(roles))
		for i, role := range roles {
			p.Roles[i] = Role(role)
		}
		p.CreatedAt = createdAt.UTC()
		p.UpdatedAt = updatedAt.UTC()
		if p.Kind == KindVendor {
			v.Name = p.Name
			p.Vendor = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
