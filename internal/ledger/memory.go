package ledger

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

type memoryState struct {
	balances     map[string]int64
	transactions map[string]Transaction
}

func (s memoryState) clone() memoryState {
	return memoryState{
		balances:     maps.Clone(s.balances),
		transactions: maps.Clone(s.transactions),
	}
}

// memoryStore serialises atomic units behind one mutex. Each unit works on a
// copy of the state which replaces the original only when the unit succeeds.
type memoryStore struct {
	mu     sync.RWMutex
	state  memoryState
	vendor VendorCheck
}

// VendorCheck reports whether vendorID names a registered vendor.
type VendorCheck func(ctx context.Context, vendorID string) (bool, error)

// MemoryOption configures NewMemoryStore.
type MemoryOption func(*memoryStore)

// WithVendorCheck makes the store answer ErrVendorNotFound for ids that check
// rejects, as the Postgres store does for missing vendor rows.
func WithVendorCheck(check VendorCheck) MemoryOption {
	return func(s *memoryStore) { s.vendor = check }
}

// NewMemoryStore creates a concurrency-safe in-memory ledger store for
// development and tests. Known vendors start with a zero balance; without
// WithVendorCheck every id is treated as a vendor.
func NewMemoryStore(opts ...MemoryOption) Store {
	s := &memoryStore{state: memoryState{
		balances:     make(map[string]int64),
		transactions: make(map[string]Transaction),
	}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *memoryStore) requireVendor(ctx context.Context, vendorID string) error {
	if s.vendor == nil {
		return nil
	}
	ok, err := s.vendor(ctx, vendorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVendorNotFound
	}
	return nil
}

func (s *memoryStore) WithAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &memoryTx{state: work, store: s}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memoryStore) Balance(ctx context.Context, vendorID string) (int64, error) {
	if err := s.requireVendor(ctx, vendorID); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.balances[vendorID], nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, nil
}

func (s *memoryStore) ListByVendor(_ context.Context, vendorID string, limit, offset int) ([]Transaction, error) {
	s.mu.RLock()
	var out []Transaction
	for _, t := range s.state.transactions {
		if t.VendorID == vendorID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type memoryTx struct {
	state memoryState
	store *memoryStore
}

func (t *memoryTx) LockBalance(ctx context.Context, vendorID string) (int64, error) {
	if err := t.store.requireVendor(ctx, vendorID); err != nil {
		return 0, err
	}
	return t.state.balances[vendorID], nil
}

func (t *memoryTx) HasRecentDuplicate(_ context.Context, vendorID string, amount int64, typ Type, since time.Time) (bool, error) {
	for _, tr := range t.state.transactions {
		if tr.VendorID == vendorID && tr.Amount == amount && tr.Type == typ &&
			tr.Status != StatusFailed && !tr.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) Insert(_ context.Context, tr Transaction) error {
	t.state.transactions[tr.ID] = tr
	return nil
}

func (t *memoryTx) AdjustBalance(ctx context.Context, vendorID string, delta int64) (int64, error) {
	if err := t.store.requireVendor(ctx, vendorID); err != nil {
		return 0, err
	}
	next := t.state.balances[vendorID] + delta
	if next < 0 {
		return 0, ErrNegativeBalance
	}
	t.state.balances[vendorID] = next
	return next, nil
}

func (t *memoryTx) Get(_ context.Context, id string) (Transaction, error) {
	tr, ok := t.state.transactions[id]
	if !ok {
		return Transaction{}, ErrTransactionNotFound
	}
	return tr, nil
}

func (t *memoryTx) UpdateStatus(_ context.Context, id string, status Status, at time.Time) error {
	tr, ok := t.state.transactions[id]
	if !ok {
		return ErrTransactionNotFound
	}
	tr.Status = status
	tr.UpdatedAt = at
	t.state.transactions[id] = tr
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id string) error {
	if _, ok := t.state.transactions[id]; !ok {
		return ErrTransactionNotFound
	}
	delete(t.state.transactions, id)
	return nil
}
