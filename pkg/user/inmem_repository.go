package user

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User   // id -> User
	byLogin map[string]string // login -> id
}

// NewInMemoryRepository creates a new in-memory user repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]User),
		byLogin: make(map[string]string),
	}
}

// Seed loads users in bulk, replacing any with the same id. Useful for tests and demos.
func (r *InMemoryRepository) Seed(users ...User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.New().String()
		}
		r.users[u.ID] = u
		r.byLogin[u.Login] = u.ID
	}
}

func (r *InMemoryRepository) GetUser(ctx context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (r *InMemoryRepository) FindUserByLogin(ctx context.Context, login string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byLogin[login]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.users[id], nil
}

func (r *InMemoryRepository) ListUsers(ctx context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *InMemoryRepository) CreateUser(ctx context.Context, u User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byLogin[u.Login]; ok {
		return User{}, ErrUserAlreadyExists
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if _, ok := r.users[u.ID]; ok {
		return User{}, ErrUserAlreadyExists
	}
	r.users[u.ID] = u
	r.byLogin[u.Login] = u.ID
	return u, nil
}
