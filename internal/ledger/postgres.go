package ledger

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

const checkViolation = "23514"

// PostgresStore keeps balances in vendors.wallet_balance and the log in
// wallet_transactions. Atomic units are database transactions that lock the
// vendor row before touching its balance.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithAtomic runs fn inside a database transaction.
func (s *PostgresStore) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Internal("begin ledger transaction", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Internal("commit ledger transaction", err)
	}
	return nil
}

// Balance returns the committed balance for vendorID.
func (s *PostgresStore) Balance(ctx context.Context, vendorID string) (int64, error) {
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return 0, ErrVendorNotFound
	}
	var balance int64
	if err := s.db.QueryRow(ctx, `SELECT wallet_balance FROM vendors WHERE id = $1`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVendorNotFound
		}
		return 0, apperr.Internal("load balance", err)
	}
	return balance, nil
}

// Get returns a committed transaction.
func (s *PostgresStore) Get(ctx context.Context, id string) (Transaction, error) {
	return getTransaction(ctx, s.db, id, false)
}

// ListByVendor pages through a vendor's transactions newest first.
func (s *PostgresStore) ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]Transaction, error) {
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM wallet_transactions
        WHERE vendor_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, apperr.Internal("scan transaction", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	return out, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockBalance(ctx context.Context, vendorID string) (int64, error) {
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return 0, ErrVendorNotFound
	}
	var balance int64
	if err := t.tx.QueryRow(ctx, `SELECT wallet_balance FROM vendors WHERE id = $1 FOR UPDATE`, id).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVendorNotFound
		}
		return 0, apperr.Internal("lock balance", err)
	}
	return balance, nil
}

func (t *pgTx) HasRecentDuplicate(ctx context.Context, vendorID string, amount int64, typ Type, since time.Time) (bool, error) {
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return false, ErrVendorNotFound
	}
	var exists bool
	err = t.tx.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM wallet_transactions
        WHERE vendor_id = $1 AND amount = $2 AND type = $3 AND status <> 'failed' AND created_at >= $4)`,
		id, amount, string(typ), since.UTC()).Scan(&exists)
	if err != nil {
		return false, apperr.Internal("check duplicate transaction", err)
	}
	return exists, nil
}

func (t *pgTx) Insert(ctx context.Context, tr Transaction) error {
	id, err := uuid.Parse(tr.ID)
	if err != nil {
		return apperr.Validation("invalid transaction id")
	}
	vendorID, err := uuid.Parse(tr.VendorID)
	if err != nil {
		return ErrVendorNotFound
	}
	if _, err := t.tx.Exec(ctx, `INSERT INTO wallet_transactions
        (id, vendor_id, amount, type, status, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, vendorID, tr.Amount, string(tr.Type), string(tr.Status), tr.Description,
		tr.CreatedAt.UTC(), tr.UpdatedAt.UTC()); err != nil {
		return apperr.Internal("insert transaction", err)
	}
	return nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, vendorID string, delta int64) (int64, error) {
	id, err := uuid.Parse(vendorID)
	if err != nil {
		return 0, ErrVendorNotFound
	}
	var balance int64
	err = t.tx.QueryRow(ctx, `UPDATE vendors SET wallet_balance = wallet_balance + $2, updated_at = now()
        WHERE id = $1 RETURNING wallet_balance`, id, delta).Scan(&balance)
	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return 0, ErrVendorNotFound
		case errors.As(err, &pgErr) && pgErr.Code == checkViolation:
			return 0, ErrNegativeBalance
		}
		return 0, apperr.Internal("adjust balance", err)
	}
	return balance, nil
}

func (t *pgTx) Get(ctx context.Context, id string) (Transaction, error) {
	return getTransaction(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	tid, err := uuid.Parse(id)
	if err != nil {
		return ErrTransactionNotFound
	}
	tag, err := t.tx.Exec(ctx, `UPDATE wallet_transactions SET status = $2, updated_at = $3 WHERE id = $1`,
		tid, string(status), at.UTC())
	if err != nil {
		return apperr.Internal("update transaction status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	tid, err := uuid.Parse(id)
	if err != nil {
		return ErrTransactionNotFound
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM wallet_transactions WHERE id = $1`, tid)
	if err != nil {
		return apperr.Internal("delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

const transactionColumns = `id, vendor_id, amount, type, status, description, created_at, updated_at`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTransaction(ctx context.Context, q querier, id string, forUpdate bool) (Transaction, error) {
	tid, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrTransactionNotFound
	}
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTransaction(q.QueryRow(ctx, query, tid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, apperr.Internal("load transaction", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t        Transaction
		id       uuid.UUID
		vendorID uuid.UUID
		typ      string
		status   string
	)
	if err := row.Scan(&id, &vendorID, &t.Amount, &typ, &status, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.VendorID = vendorID.String()
	t.Type = Type(typ)
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
