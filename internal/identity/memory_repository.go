package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	principals map[string]Principal
}

// NewMemoryRepository builds an in-memory principal store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{principals: make(map[string]Principal)}
}

func (r *memoryRepository) Create(_ context.Context, p Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.principals[p.ID]; exists {
		return ErrPhoneTaken
	}
	for _, existing := range r.principals {
		if existing.Kind == p.Kind && existing.Phone == p.Phone {
			return ErrPhoneTaken
		}
	}
	r.principals[p.ID] = p.clone()
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p.clone(), nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) ([]Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Principal
	for _, p := range r.principals {
		if p.Phone == phone {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, status Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return ErrNotFound
	}
	r.principals[id] = p.WithStatus(status, at)
	return nil
}

func (r *memoryRepository) AddRole(_ context.Context, id string, role Role, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return ErrNotFound
	}
	if p.HasRole(role) {
		return nil
	}
	c := p.clone()
	c.Roles = append(c.Roles, role)
	c.UpdatedAt = at
	r.principals[id] = c
	return nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.principals[id]; !ok {
		return ErrNotFound
	}
	delete(r.principals, id)
	return nil
}
