package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deposit(vendorID string, amount int64, at time.Time) Transaction {
	return Transaction{
		ID:        uuid.NewString(),
		VendorID:  vendorID,
		Amount:    amount,
		Type:      TypeDeposit,
		Status:    StatusPending,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestWithAtomicDiscardsFailedUnit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr := deposit("v1", 500, time.Now())

	boom := errors.New("boom")
	err := store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Insert(ctx, tr))
		_, err := tx.AdjustBalance(ctx, "v1", tr.Delta())
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := store.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, balance)
	_, err = store.Get(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestAdjustBalanceRejectsNegative(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	SeedBalance(store, "v1", 100)

	err := store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.AdjustBalance(ctx, "v1", -101)
		return err
	})
	assert.ErrorIs(t, err, ErrNegativeBalance)

	balance, _ := store.Balance(ctx, "v1")
	assert.Equal(t, int64(100), balance)
}

func TestConcurrentUnitsSerialise(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	SeedBalance(store, "v1", 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
				balance, err := tx.LockBalance(ctx, "v1")
				if err != nil {
					return err
				}
				if balance < 100 {
					return ErrNegativeBalance
				}
				_, err = tx.AdjustBalance(ctx, "v1", -100)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, _ := store.Balance(ctx, "v1")
	assert.Equal(t, 10, succeeded)
	assert.Zero(t, balance)
}

func TestHasRecentDuplicateIgnoresFailedAndOld(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	old := deposit("v1", 500, now.Add(-10*time.Minute))
	failed := deposit("v1", 700, now)
	failed.Status = StatusFailed
	require.NoError(t, store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		require.NoError(t, tx.Insert(ctx, old))
		return tx.Insert(ctx, failed)
	}))

	require.NoError(t, store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		since := now.Add(-5 * time.Minute)
		dup, err := tx.HasRecentDuplicate(ctx, "v1", 500, TypeDeposit, since)
		require.NoError(t, err)
		assert.False(t, dup)
		dup, err = tx.HasRecentDuplicate(ctx, "v1", 700, TypeDeposit, since)
		require.NoError(t, err)
		assert.False(t, dup)
		dup, err = tx.HasRecentDuplicate(ctx, "v1", 500, TypeDeposit, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, dup)
		return nil
	}))
}

func TestListByVendorNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	var ids []string
	require.NoError(t, store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		for i := 0; i < 3; i++ {
			tr := deposit("v1", int64(100*(i+1)), base.Add(time.Duration(i)*time.Second))
			ids = append(ids, tr.ID)
			if err := tx.Insert(ctx, tr); err != nil {
				return err
			}
		}
		return tx.Insert(ctx, deposit("v2", 1, base))
	}))

	list, err := store.ListByVendor(ctx, "v1", 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)

	list, err = store.ListByVendor(ctx, "v1", 10, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].ID)

	list, err = store.ListByVendor(ctx, "v1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVendorCheckRejectsUnknownVendors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithVendorCheck(func(_ context.Context, id string) (bool, error) {
		return id == "v1", nil
	}))

	balance, err := store.Balance(ctx, "v1")
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = store.Balance(ctx, "ghost")
	assert.ErrorIs(t, err, ErrVendorNotFound)

	err = store.WithAtomic(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.LockBalance(ctx, "ghost")
		return err
	})
	assert.ErrorIs(t, err, ErrVendorNotFound)
}
