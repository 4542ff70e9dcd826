package wallet

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/ledger"
)

// CreateInput describes a new wallet transaction.
type CreateInput struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Validate checks the shape of in.
func (in CreateInput) Validate() error {
	return asValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Amount, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.Type, validation.Required, validation.In(string(ledger.TypeDeposit), string(ledger.TypeWithdrawal))),
		validation.Field(&in.Description, validation.Length(0, 500)),
	))
}

// UpdateInput is a status change. Only pending transactions may move, and
// only to completed or failed.
type UpdateInput struct {
	Status string `json:"status"`
}

// Validate checks the shape of in.
func (in UpdateInput) Validate() error {
	return asValidation(validation.ValidateStruct(&in,
		validation.Field(&in.Status, validation.Required, validation.In(string(ledger.StatusCompleted), string(ledger.StatusFailed))),
	))
}

// TransactionView is the JSON shape of a transaction.
type TransactionView struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendor_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTransactionView renders t for clients.
func NewTransactionView(t ledger.Transaction) TransactionView {
	return TransactionView{
		ID:          t.ID,
		VendorID:    t.VendorID,
		Amount:      t.Amount,
		Type:        string(t.Type),
		Status:      string(t.Status),
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// Balance is a vendor balance read at a point in time.
type Balance struct {
	VendorID string    `json:"vendor_id"`
	Amount   int64     `json:"balance"`
	AsOf     time.Time `json:"as_of"`
}

func asValidation(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation(err.Error())
}
