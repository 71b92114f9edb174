package user

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser stores u with password hashed by bcrypt. An empty password leaves the
// account without a usable password.
func (s *Service) CreateUser(ctx context.Context, u User, password string) (User, error) {
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = hash
	}
	return s.repo.CreateUser(ctx, u)
}

// Authenticate checks login and password. Unknown logins and wrong passwords
// both return ErrInvalidPassword.
func (s *Service) Authenticate(ctx context.Context, login, password string) (User, error) {
	u, err := s.repo.FindUserByLogin(ctx, login)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidPassword
	}
	if err != nil {
		return User{}, err
	}
	if u.PasswordHash == "" {
		slog.Warn("Login attempt for account without password", "login", login)
		return User{}, ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidPassword
	}
	return u, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
