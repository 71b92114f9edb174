package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	svc := NewService(repo)

	_, err := svc.CreateUser(ctx, User{ID: "1", Login: "admin"}, "correct horse")
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, User{ID: "2", Login: "nopass"}, "")
	require.NoError(t, err)

	stored, err := repo.GetUser(ctx, "1")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)

	tests := []struct {
		name     string
		login    string
		password string
		wantErr  error
	}{
		{"valid", "admin", "correct horse", nil},
		{"wrong password", "admin", "battery staple", ErrInvalidPassword},
		{"unknown login", "ghost", "correct horse", ErrInvalidPassword},
		{"no password set", "nopass", "", ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.Authenticate(ctx, tt.login, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "1", u.ID)
		})
	}
}
