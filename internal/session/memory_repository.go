package session

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
	byAccess map[string]string
}

// NewMemoryRepository builds an in-memory session store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		sessions: make(map[string]Session),
		byAccess: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byAccess[s.AccessToken]; taken {
		return ErrDuplicateToken
	}
	r.sessions[s.ID] = s
	r.byAccess[s.AccessToken] = s.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *memoryRepository) FindByAccessToken(_ context.Context, accessToken string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAccess[accessToken]
	if !ok {
		return Session{}, ErrNotFound
	}
	return r.sessions[id], nil
}

func (r *memoryRepository) FindByRefreshToken(_ context.Context, principalID, refreshToken string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.PrincipalID == principalID && s.RefreshToken != "" && s.RefreshToken == refreshToken {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *memoryRepository) Transition(_ context.Context, id string, status Status, at time.Time) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if s.Status == StatusActive {
		s.Status = status
		s.UpdatedAt = at
		r.sessions[id] = s
	}
	return s, nil
}

func (r *memoryRepository) RotateAccess(_ context.Context, id, accessToken string, accessExpiresAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != StatusActive {
		return ErrNotFound
	}
	if owner, taken := r.byAccess[accessToken]; taken && owner != id {
		return ErrDuplicateToken
	}
	delete(r.byAccess, s.AccessToken)
	s.AccessToken = accessToken
	s.AccessExpiresAt = accessExpiresAt
	s.UpdatedAt = at
	r.sessions[id] = s
	r.byAccess[accessToken] = id
	return nil
}

func (r *memoryRepository) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.Status == StatusActive && s.Expired(now) {
			s.Status = StatusExpired
			s.UpdatedAt = now
			r.sessions[id] = s
			n++
		}
	}
	return n, nil
}
