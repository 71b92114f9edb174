package user

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidPassword   = errors.New("invalid login or password")
)

// User is a host account a principal can be switched to.
type User struct {
	ID           string   `json:"id"`
	Login        string   `json:"login"`
	DisplayName  string   `json:"display_name"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	PasswordHash string   `json:"password_hash,omitempty"`
}

func (u User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("login", u.Login),
	)
}

// Repository is the host user lookup.
type Repository interface {
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByLogin(ctx context.Context, login string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u User) (User, error)
}
