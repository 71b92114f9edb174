package sessions

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session // jti -> Session
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory session repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.JTI] = session
	return nil
}

func (r *InMemoryRepository) GetByJTI(ctx context.Context, jti string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[jti]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (r *InMemoryRepository) RevokeByJTI(ctx context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[jti]
	if !ok || session.RevokedAt != nil {
		return nil
	}
	now := r.now()
	session.RevokedAt = &now
	r.sessions[jti] = session
	return nil
}

func (r *InMemoryRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[jti]
	if !ok {
		return false, nil
	}
	return session.RevokedAt != nil, nil
}

func (r *InMemoryRepository) DeleteExpired(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for jti, session := range r.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(r.sessions, jti)
		}
	}
	return nil
}
