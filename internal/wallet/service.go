// Package wallet maintains vendor balances and their append-only transaction
// log. Every balance change goes through an atomic ledger unit that also
// writes the matching transaction row.
package wallet

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/ledger"
	"github.com/bazaarino/bazaar/internal/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	// ErrInsufficientBalance is returned when a withdrawal, or the reversal of a
	// deposit, would take the balance below zero.
	ErrInsufficientBalance = apperr.Validation("insufficient balance")
	// ErrDuplicate is returned when the same vendor, amount and type was
	// submitted within the duplicate window.
	ErrDuplicate = apperr.Validation("duplicate transaction")
	// ErrNotPending is returned when deleting or updating a settled transaction.
	ErrNotPending = apperr.Validation("transaction is no longer pending")
	// ErrVendorOnly is returned when a non-vendor tries to transact.
	ErrVendorOnly = apperr.Unauthorized("vendor role required")
	// ErrForbidden is returned when the caller neither owns the transaction nor is an admin.
	ErrForbidden = apperr.Unauthorized("not allowed to access this wallet")
)

// Service runs wallet operations against a ledger store.
type Service struct {
	store           ledger.Store
	duplicateWindow time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewService builds a wallet service. A non-positive duplicateWindow disables
// the duplicate guard.
func NewService(store ledger.Store, duplicateWindow time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:           store,
		duplicateWindow: duplicateWindow,
		logger:          logging.Component(logger, "wallet"),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateTransaction records a pending transaction for the calling vendor and
// applies its delta to the balance in the same atomic unit.
func (s *Service) CreateTransaction(ctx context.Context, actor identity.Principal, in CreateInput) (ledger.Transaction, error) {
	if actor.Kind != identity.KindVendor {
		return ledger.Transaction{}, ErrVendorOnly
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}

	now := s.now()
	t := ledger.Transaction{
		ID:          uuid.NewString(),
		VendorID:    actor.ID,
		Amount:      in.Amount,
		Type:        ledger.Type(in.Type),
		Status:      ledger.StatusPending,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var balance int64
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		current, err := tx.LockBalance(ctx, t.VendorID)
		if err != nil {
			return err
		}
		if s.duplicateWindow > 0 {
			dup, err := tx.HasRecentDuplicate(ctx, t.VendorID, t.Amount, t.Type, now.Add(-s.duplicateWindow))
			if err != nil {
				return err
			}
			if dup {
				return ErrDuplicate
			}
		}
		if current+t.Delta() < 0 {
			return ErrInsufficientBalance
		}
		if err := tx.Insert(ctx, t); err != nil {
			return err
		}
		balance, err = tx.AdjustBalance(ctx, t.VendorID, t.Delta())
		return err
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("create transaction", t.VendorID, err)
	}
	s.logger.Info("transaction created",
		slog.String("transaction_id", t.ID),
		slog.String("vendor_id", t.VendorID),
		slog.String("type", string(t.Type)),
		slog.Int64("amount", t.Amount),
		slog.Int64("balance", balance))
	return t, nil
}

// DeleteTransaction removes a pending transaction and reverses its delta.
func (s *Service) DeleteTransaction(ctx context.Context, actor identity.Principal, id string) error {
	var vendorID string
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		t, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, t.VendorID); err != nil {
			return err
		}
		if t.Status != ledger.StatusPending {
			return ErrNotPending
		}
		vendorID = t.VendorID
		if err := s.reverse(ctx, tx, t); err != nil {
			return err
		}
		return tx.Delete(ctx, t.ID)
	})
	if err != nil {
		return s.fail("delete transaction", vendorID, err)
	}
	s.logger.Info("transaction deleted", slog.String("transaction_id", id), slog.String("vendor_id", vendorID))
	return nil
}

// UpdateTransaction moves a pending transaction to completed or failed. A
// failed transaction has its delta reversed in the same atomic unit.
func (s *Service) UpdateTransaction(ctx context.Context, actor identity.Principal, id string, in UpdateInput) (ledger.Transaction, error) {
	if err := in.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	target := ledger.Status(in.Status)
	now := s.now()

	var (
		updated  ledger.Transaction
		vendorID string
	)
	err := s.store.WithAtomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		t, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		vendorID = t.VendorID
		if err := authorize(actor, t.VendorID); err != nil {
			return err
		}
		if t.Status != ledger.StatusPending {
			return ErrNotPending
		}
		if target == ledger.StatusFailed {
			if err := s.reverse(ctx, tx, t); err != nil {
				return err
			}
		}
		if err := tx.UpdateStatus(ctx, t.ID, target, now); err != nil {
			return err
		}
		t.Status = target
		t.UpdatedAt = now
		updated = t
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("update transaction", vendorID, err)
	}
	s.logger.Info("transaction updated",
		slog.String("transaction_id", updated.ID),
		slog.String("vendor_id", updated.VendorID),
		slog.String("status", string(updated.Status)))
	return updated, nil
}

// GetTransaction returns a transaction visible to actor.
func (s *Service) GetTransaction(ctx context.Context, actor identity.Principal, id string) (ledger.Transaction, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return ledger.Transaction{}, s.fail("get transaction", "", err)
	}
	if err := authorize(actor, t.VendorID); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

// ListByVendor pages through a vendor's transactions. An empty vendorID
// means the caller's own wallet.
func (s *Service) ListByVendor(ctx context.Context, actor identity.Principal, vendorID string, limit, offset int) ([]ledger.Transaction, error) {
	if vendorID == "" {
		vendorID = actor.ID
	}
	if err := authorize(actor, vendorID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, err := s.store.ListByVendor(ctx, vendorID, limit, offset)
	if err != nil {
		return nil, s.fail("list transactions", vendorID, err)
	}
	return list, nil
}

// Balance returns the current balance of a vendor wallet.
func (s *Service) Balance(ctx context.Context, actor identity.Principal, vendorID string) (Balance, error) {
	if vendorID == "" {
		vendorID = actor.ID
	}
	if err := authorize(actor, vendorID); err != nil {
		return Balance{}, err
	}
	amount, err := s.store.Balance(ctx, vendorID)
	if err != nil {
		return Balance{}, s.fail("load balance", vendorID, err)
	}
	return Balance{VendorID: vendorID, Amount: amount, AsOf: s.now()}, nil
}

func (s *Service) reverse(ctx context.Context, tx ledger.Tx, t ledger.Transaction) error {
	current, err := tx.LockBalance(ctx, t.VendorID)
	if err != nil {
		return err
	}
	if current-t.Delta() < 0 {
		return ErrInsufficientBalance
	}
	_, err = tx.AdjustBalance(ctx, t.VendorID, -t.Delta())
	return err
}

// fail logs storage failures with context. Domain errors pass through unchanged.
func (s *Service) fail(op, vendorID string, err error) error {
	if apperr.IsKind(err, apperr.KindInternal) {
		s.logger.Error(op+" failed", slog.String("vendor_id", vendorID), slog.Any("error", err))
	}
	return err
}

func authorize(actor identity.Principal, vendorID string) error {
	if actor.ID == vendorID || actor.IsAdmin() {
		return nil
	}
	return ErrForbidden
}
