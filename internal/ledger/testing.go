package ledger

// SeedBalance sets a vendor balance directly when using the in-memory store.
// It bypasses the transaction log and exists for tests only.
func SeedBalance(s Store, vendorID string, amount int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.state.balances[vendorID] = amount
	}
}
