package sessions

import (
	"time"
)

// Session records one issued session credential, keyed by its JWT ID.
type Session struct {
	JTI       string     `json:"jti"`
	UserID    string     `json:"user_id"`
	Remember  bool       `json:"remember"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the session is neither revoked nor expired at now.
func (s Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
