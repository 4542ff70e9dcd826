// Package ledger stores vendor wallet balances and their transaction log and
// runs every balance mutation inside a single atomic unit.
package ledger

import (
	"context"
	"time"

	"github.com/bazaarino/bazaar/internal/apperr"
)

// Type is the direction of a transaction.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

// Status is the settlement state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrVendorNotFound is returned when the vendor has no wallet row.
	ErrVendorNotFound = apperr.NotFound("vendor not found")
	// ErrTransactionNotFound is returned when no transaction matches.
	ErrTransactionNotFound = apperr.NotFound("transaction not found")
	// ErrNegativeBalance is returned when an adjustment would take a balance below zero.
	ErrNegativeBalance = apperr.Validation("insufficient balance")
)

// Transaction is one entry in a vendor's wallet log. Amount is in minor units
// and always positive; Type carries the sign.
type Transaction struct {
	ID          string
	VendorID    string
	Amount      int64
	Type        Type
	Status      Status
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Delta is the signed balance change the transaction applied when created.
func (t Transaction) Delta() int64 {
	if t.Type == TypeWithdrawal {
		return -t.Amount
	}
	return t.Amount
}

// Tx is the set of reads and writes available inside one atomic unit.
type Tx interface {
	// LockBalance returns the vendor balance and holds it against concurrent units.
	LockBalance(ctx context.Context, vendorID string) (int64, error)
	// HasRecentDuplicate reports whether a non-failed transaction with the same
	// vendor, amount and type was created at or after since.
	HasRecentDuplicate(ctx context.Context, vendorID string, amount int64, typ Type, since time.Time) (bool, error)
	Insert(ctx context.Context, t Transaction) error
	// AdjustBalance adds delta to the vendor balance and returns the new value.
	AdjustBalance(ctx context.Context, vendorID string, delta int64) (int64, error)
	// Get returns the transaction and holds it against concurrent units.
	Get(ctx context.Context, id string) (Transaction, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// Store runs atomic units and serves reads outside of them.
type Store interface {
	// WithAtomic runs fn in one atomic unit. Any error returned by fn, or by
	// the commit, discards every write fn made.
	WithAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Balance(ctx context.Context, vendorID string) (int64, error)
	Get(ctx context.Context, id string) (Transaction, error)
	// ListByVendor returns the vendor's transactions newest first.
	ListByVendor(ctx context.Context, vendorID string, limit, offset int) ([]Transaction, error)
}
