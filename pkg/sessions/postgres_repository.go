package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL session repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool: pool,
	}
}

func (r *PostgresRepository) Create(ctx context.Context, session Session) error {
	query := `
		INSERT INTO switch_sessions (jti, user_id, remember, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		session.JTI,
		session.UserID,
		session.Remember,
		session.IssuedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByJTI(ctx context.Context, jti string) (Session, error) {
	query := `
		SELECT jti, user_id, remember, issued_at, expires_at, revoked_at
		FROM switch_sessions
		WHERE jti = $1
	`

	var session Session
	err := r.pool.QueryRow(ctx, query, jti).Scan(
		&session.JTI,
		&session.UserID,
		&session.Remember,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) RevokeByJTI(ctx context.Context, jti string) error {
	query := `
		UPDATE switch_sessions
		SET revoked_at = NOW()
		WHERE jti = $1 AND revoked_at IS NULL
	`
	if _, err := r.pool.Exec(ctx, query, jti); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM switch_sessions WHERE jti = $1 AND revoked_at IS NOT NULL
		)
	`
	var revoked bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
	return revoked, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM switch_sessions WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}
