package user

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// FileRepository implements Repository using a JSON file in dataDir
type FileRepository struct {
	dataDir string
	users   map[string]*User
	mutex   sync.RWMutex
}

// userData represents the structure of data stored in the JSON file
type userData struct {
	Users []*User `json:"users"`
}

// NewFileRepository creates a new file-based user repository
func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRepository{
		dataDir: dataDir,
		users:   make(map[string]*User),
	}

	if err := repo.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return repo, nil
}

func (r *FileRepository) GetUser(ctx context.Context, id string) (User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (r *FileRepository) FindUserByLogin(ctx context.Context, login string) (User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, u := range r.users {
		if u.Login == login {
			return *u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *FileRepository) ListUsers(ctx context.Context) ([]User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *FileRepository) CreateUser(ctx context.Context, u User) (User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.users {
		if existing.Login == u.Login {
			return User{}, ErrUserAlreadyExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if _, ok := r.users[u.ID]; ok {
		return User{}, ErrUserAlreadyExists
	}

	r.users[u.ID] = &u
	if err := r.save(); err != nil {
		delete(r.users, u.ID)
		return User{}, err
	}
	return u, nil
}

func (r *FileRepository) load() error {
	filePath := filepath.Join(r.dataDir, "users.json")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var obj userData
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	r.users = make(map[string]*User, len(obj.Users))
	for _, u := range obj.Users {
		r.users[u.ID] = u
	}
	return nil
}

func (r *FileRepository) save() error {
	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	jsonData, err := json.MarshalIndent(userData{Users: users}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Write to temp file first
	filePath := filepath.Join(r.dataDir, "users.json")
	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
