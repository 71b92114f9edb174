package sessions

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

// Repository tracks issued credentials so a cleared credential cannot be
// replayed after a switch.
type Repository interface {
	// Create records a newly issued session
	Create(ctx context.Context, session Session) error

	// GetByJTI retrieves a session by JWT ID
	GetByJTI(ctx context.Context, jti string) (Session, error)

	// RevokeByJTI marks a session as revoked. Revoking an unknown jti is not an error.
	RevokeByJTI(ctx context.Context, jti string) error

	// IsRevoked reports whether a session has been revoked
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired removes sessions past their expiry (maintenance)
	DeleteExpired(ctx context.Context) error
}
