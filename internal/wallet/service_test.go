package wallet

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarino/bazaar/internal/apperr"
	"github.com/bazaarino/bazaar/internal/identity"
	"github.com/bazaarino/bazaar/internal/ledger"
	"github.com/bazaarino/bazaar/internal/logging"
)

func vendor() identity.Principal {
	return identity.Principal{
		ID:     uuid.NewString(),
		Kind:   identity.KindVendor,
		Roles:  []identity.Role{identity.RoleVendor},
		Status: identity.StatusActive,
		Vendor: &identity.VendorProfile{Name: "Shop"},
	}
}

func admin() identity.Principal {
	return identity.Principal{
		ID:     uuid.NewString(),
		Kind:   identity.KindUser,
		Roles:  []identity.Role{identity.RoleUser, identity.RoleAdmin},
		Status: identity.StatusActive,
	}
}

func newTestService() (*Service, ledger.Store) {
	store := ledger.NewMemoryStore()
	return NewService(store, 5*time.Minute, logging.Discard()), store
}

func balanceOf(t *testing.T, store ledger.Store, vendorID string) int64 {
	t.Helper()
	b, err := store.Balance(context.Background(), vendorID)
	require.NoError(t, err)
	return b
}

// ledgerSum folds every non-failed transaction of the vendor.
func ledgerSum(t *testing.T, store ledger.Store, vendorID string) int64 {
	t.Helper()
	list, err := store.ListByVendor(context.Background(), vendorID, 0, 0)
	require.NoError(t, err)
	var sum int64
	for _, tr := range list {
		if tr.Status != ledger.StatusFailed {
			sum += tr.Delta()
		}
	}
	return sum
}

func TestDepositWithdrawThenDuplicate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()

	dep, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 500, Type: "deposit"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, dep.Status)
	assert.Equal(t, int64(500), balanceOf(t, store, v.ID))

	_, err = svc.CreateTransaction(ctx, v, CreateInput{Amount: 500, Type: "withdrawal"})
	require.NoError(t, err)
	assert.Zero(t, balanceOf(t, store, v.ID))

	_, err = svc.CreateTransaction(ctx, v, CreateInput{Amount: 500, Type: "withdrawal"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Zero(t, balanceOf(t, store, v.ID))
	assert.Equal(t, balanceOf(t, store, v.ID), ledgerSum(t, store, v.ID))
}

func TestDuplicateWindowExpires(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()
	base := time.Now().UTC()
	svc.now = func() time.Time { return base }

	_, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 300, Type: "deposit"})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(6 * time.Minute) }
	_, err = svc.CreateTransaction(ctx, v, CreateInput{Amount: 300, Type: "deposit"})
	require.NoError(t, err)
	assert.Equal(t, int64(600), balanceOf(t, store, v.ID))
}

func TestWithdrawalRejectedWhenBalanceTooLow(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()
	ledger.SeedBalance(store, v.ID, 999)

	_, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 1000, Type: "withdrawal"})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(999), balanceOf(t, store, v.ID))

	list, err := svc.ListByVendor(ctx, v, "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	v := vendor()

	for _, in := range []CreateInput{
		{Amount: 0, Type: "deposit"},
		{Amount: -5, Type: "deposit"},
		{Amount: 10, Type: "refund"},
		{Amount: 10},
	} {
		_, err := svc.CreateTransaction(ctx, v, in)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "%+v", in)
	}

	_, err := svc.CreateTransaction(ctx, admin(), CreateInput{Amount: 10, Type: "deposit"})
	assert.ErrorIs(t, err, ErrVendorOnly)
}

func TestDeleteReversesPendingOnly(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()

	dep, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 800, Type: "deposit"})
	require.NoError(t, err)
	wd, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 300, Type: "withdrawal"})
	require.NoError(t, err)
	require.Equal(t, int64(500), balanceOf(t, store, v.ID))

	// removing the deposit would leave -300
	assert.ErrorIs(t, svc.DeleteTransaction(ctx, v, dep.ID), ErrInsufficientBalance)
	assert.Equal(t, int64(500), balanceOf(t, store, v.ID))

	require.NoError(t, svc.DeleteTransaction(ctx, v, wd.ID))
	assert.Equal(t, int64(800), balanceOf(t, store, v.ID))
	_, err = svc.GetTransaction(ctx, v, wd.ID)
	assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)

	_, err = svc.UpdateTransaction(ctx, v, dep.ID, UpdateInput{Status: "completed"})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteTransaction(ctx, v, dep.ID), ErrNotPending)
	assert.Equal(t, ledgerSum(t, store, v.ID), balanceOf(t, store, v.ID))
}

func TestUpdateToFailedCompensates(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()
	ledger.SeedBalance(store, v.ID, 0)

	_, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 1000, Type: "deposit"})
	require.NoError(t, err)
	wd, err := svc.CreateTransaction(ctx, v, CreateInput{Amount: 400, Type: "withdrawal"})
	require.NoError(t, err)
	require.Equal(t, int64(600), balanceOf(t, store, v.ID))

	failed, err := svc.UpdateTransaction(ctx, v, wd.ID, UpdateInput{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, failed.Status)
	assert.Equal(t, int64(1000), balanceOf(t, store, v.ID))

	_, err = svc.UpdateTransaction(ctx, v, wd.ID, UpdateInput{Status: "completed"})
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = svc.UpdateTransaction(ctx, v, wd.ID, UpdateInput{Status: "pending"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	// a failed entry no longer counts as a duplicate
	_, err = svc.CreateTransaction(ctx, v, CreateInput{Amount: 400, Type: "withdrawal"})
	require.NoError(t, err)
	assert.Equal(t, ledgerSum(t, store, v.ID), balanceOf(t, store, v.ID))
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	v := vendor()
	base := time.Now().UTC()
	step := 0
	svc.now = func() time.Time { return base.Add(time.Duration(step) * time.Second) }

	ops := []CreateInput{
		{Amount: 1000, Type: "deposit"},
		{Amount: 250, Type: "withdrawal"},
		{Amount: 5000, Type: "withdrawal"},
		{Amount: 40, Type: "deposit"},
		{Amount: 250, Type: "withdrawal"},
		{Amount: 790, Type: "withdrawal"},
		{Amount: 1, Type: "withdrawal"},
	}
	var ids []string
	for _, in := range ops {
		step++
		if tr, err := svc.CreateTransaction(ctx, v, in); err == nil {
			ids = append(ids, tr.ID)
		}
		assert.Equal(t, ledgerSum(t, store, v.ID), balanceOf(t, store, v.ID))
	}
	require.NotEmpty(t, ids)
	_ = svc.DeleteTransaction(ctx, v, ids[len(ids)-1])
	_, _ = svc.UpdateTransaction(ctx, v, ids[1], UpdateInput{Status: "failed"})
	assert.Equal(t, ledgerSum(t, store, v.ID), balanceOf(t, store, v.ID))
	assert.GreaterOrEqual(t, balanceOf(t, store, v.ID), int64(0))
}

func TestOwnershipChecks(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	owner, other, boss := vendor(), vendor(), admin()

	tr, err := svc.CreateTransaction(ctx, owner, CreateInput{Amount: 100, Type: "deposit"})
	require.NoError(t, err)

	_, err = svc.GetTransaction(ctx, other, tr.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.DeleteTransaction(ctx, other, tr.ID), ErrForbidden)
	_, err = svc.UpdateTransaction(ctx, other, tr.ID, UpdateInput{Status: "completed"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ListByVendor(ctx, other, owner.ID, 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Balance(ctx, other, owner.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.GetTransaction(ctx, boss, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.VendorID)
	list, err := svc.ListByVendor(ctx, boss, owner.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	bal, err := svc.Balance(ctx, boss, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Amount)
}

// brokenStatusStore fails every status update inside an atomic unit.
type brokenStatusStore struct {
	ledger.Store
}

type brokenStatusTx struct {
	ledger.Tx
}

func (s brokenStatusStore) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.Store.WithAtomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, brokenStatusTx{tx})
	})
}

func (brokenStatusTx) UpdateStatus(context.Context, string, ledger.Status, time.Time) error {
	return errors.New("connection reset")
}

func TestUpdateFailureLogsVendor(t *testing.T) {
	var logs bytes.Buffer
	store := ledger.NewMemoryStore()
	seeded := NewService(store, 5*time.Minute, logging.Discard())
	ctx := context.Background()
	v := vendor()
	dep, err := seeded.CreateTransaction(ctx, v, CreateInput{Amount: 500, Type: "deposit"})
	require.NoError(t, err)

	svc := NewService(brokenStatusStore{store}, 5*time.Minute, slog.New(slog.NewJSONHandler(&logs, nil)))
	_, err = svc.UpdateTransaction(ctx, v, dep.ID, UpdateInput{Status: "failed"})
	require.Error(t, err)
	assert.Contains(t, logs.String(), `"vendor_id":"`+v.ID+`"`)
	assert.Equal(t, int64(500), balanceOf(t, store, v.ID))
}
