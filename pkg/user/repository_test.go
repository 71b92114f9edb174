package user

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	admin, err := repo.CreateUser(ctx, User{ID: "1", Login: "admin", DisplayName: "Admin", Roles: []string{"administrator"}})
	require.NoError(t, err)
	assert.Equal(t, "1", admin.ID)

	_, err = repo.CreateUser(ctx, User{ID: "2", Login: "editor", DisplayName: "Editor", Roles: []string{"editor"}})
	require.NoError(t, err)

	t.Run("GetUser", func(t *testing.T) {
		u, err := repo.GetUser(ctx, "2")
		require.NoError(t, err)
		assert.Equal(t, "editor", u.Login)
		assert.Equal(t, []string{"editor"}, u.Roles)
	})

	t.Run("GetUserNotFound", func(t *testing.T) {
		_, err := repo.GetUser(ctx, "42")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("FindUserByLogin", func(t *testing.T) {
		u, err := repo.FindUserByLogin(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, "1", u.ID)

		_, err = repo.FindUserByLogin(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("DuplicateLogin", func(t *testing.T) {
		_, err := repo.CreateUser(ctx, User{ID: "3", Login: "admin"})
		assert.ErrorIs(t, err, ErrUserAlreadyExists)
	})

	t.Run("GeneratedID", func(t *testing.T) {
		u, err := repo.CreateUser(ctx, User{Login: "author"})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
	})

	t.Run("ListUsers", func(t *testing.T) {
		users, err := repo.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 3)
	})
}

func TestInMemoryRepository(t *testing.T) {
	testRepository(t, NewInMemoryRepository())
}

func TestInMemoryRepositorySeed(t *testing.T) {
	repo := NewInMemoryRepository()
	repo.Seed(User{ID: "1", Login: "admin"}, User{Login: "editor"})

	u, err := repo.FindUserByLogin(context.Background(), "editor")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
}

func TestFileRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewFileRepository(dir)
	require.NoError(t, err)
	testRepository(t, repo)

	// A fresh repository sees what the first one saved.
	reloaded, err := NewFileRepository(dir)
	require.NoError(t, err)
	u, err := reloaded.GetUser(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Login)
}

func TestFileRepositoryCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/users.json", []byte("{not json"), 0644))

	_, err := NewFileRepository(dir)
	assert.Error(t, err)
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.WithInitScripts("../../migrations/switch_db.sql"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	testRepository(t, NewPostgresRepository(pool))
}
