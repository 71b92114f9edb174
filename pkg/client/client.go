package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Purpose claim a session credential must carry to identify a user.
const LoginPurpose = "login"

// AuthUser is the active Session Identity of a request.
type AuthUser struct {
	UserId      string   `json:"user_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Login       string   `json:"login,omitempty"`
	Roles       []string `json:"roles,omitempty"`

	// SessionID is the jti of the session credential; action tokens are bound to it.
	SessionID string `json:"-"`
	// SessionExpiry is when the session credential expires.
	SessionExpiry time.Time `json:"-"`
}

func (i AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", i.UserId),
		slog.String("login", i.Login),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation. This technique
// for defining context keys was copied from Go 1.7's new use of context in net/http.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "switch context value " + k.name
}

var (
	identityKey = &contextKey{"Identity"}
)

// identity is the mutable slot holding the active user for one request.
// A request handles one switch at a time, so it needs no locking.
type identity struct {
	user *AuthUser
}

// WithIdentity returns a context carrying a fresh identity slot set to u (which may be nil).
func WithIdentity(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, identityKey, &identity{user: u})
}

// GetAuthUser returns the active user of the request, if any.
func GetAuthUser(ctx context.Context) (*AuthUser, bool) {
	slot, ok := ctx.Value(identityKey).(*identity)
	if !ok || slot.user == nil {
		return nil, false
	}
	return slot.user, true
}

// SetAuthUser replaces the active user of the request. Passing nil leaves the
// request unauthenticated. It reports false when ctx carries no identity slot.
func SetAuthUser(ctx context.Context, u *AuthUser) bool {
	slot, ok := ctx.Value(identityKey).(*identity)
	if !ok {
		return false
	}
	slot.user = u
	return true
}

// AuthUserMiddleware turns a verified session credential (placed in the
// context by jwtauth.Verify) into the request's identity slot. Requests without
// a valid login credential continue unauthenticated.
func AuthUserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var authUser *AuthUser

		token, claims, err := jwtauth.FromContext(r.Context())
		switch {
		case err != nil:
			if err != jwtauth.ErrNoTokenFound {
				slog.Debug("Ignoring invalid session credential", "err", err)
			}
		case token == nil:
		case claims["purpose"] != LoginPurpose:
			slog.Warn("Session credential with unexpected purpose", "purpose", claims["purpose"])
		case token.Subject() == "":
			slog.Warn("Session credential without subject")
		default:
			authUser = &AuthUser{
				UserId:        token.Subject(),
				SessionID:     token.JwtID(),
				SessionExpiry: token.Expiration(),
			}
			if extra, ok := claims["extra_claims"].(map[string]interface{}); ok {
				authUser.Login, _ = extra["login"].(string)
				authUser.DisplayName, _ = extra["display_name"].(string)
				authUser.Roles = toStrings(extra["roles"])
			}
			slog.Debug("authenticated user", "userId", authUser.UserId)
		}

		ctx := WithIdentity(r.Context(), authUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func toStrings(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// HasRole reports whether the user carries any of the given roles.
func HasRole(user *AuthUser, roles ...string) bool {
	if user == nil {
		return false
	}
	for _, userRole := range user.Roles {
		for _, role := range roles {
			if userRole == role {
				return true
			}
		}
	}
	return false
}
