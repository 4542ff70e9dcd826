package otp

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore builds an in-memory OTP store for tests and local development.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]Record)}
}

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Phone] = rec
	return nil
}

func (s *memoryStore) Get(_ context.Context, phone string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) Consume(_ context.Context, phone, codeHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[phone]
	if !ok || rec.CodeHash != codeHash {
		return false, nil
	}
	delete(s.records, phone)
	return true, nil
}
