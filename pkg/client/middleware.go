package client

import (
	"log/slog"
	"net/http"

	"github.com/tendant/user-switching/pkg/errors"
)

func writeError(w http.ResponseWriter, err *errors.Error) {
	http.Error(w, err.Message, err.HTTPStatusCode())
}

// RequireAuth is an authorization middleware that requires an active identity.
// Returns 401 Unauthorized if the request is not authenticated.
// Must be used after AuthUserMiddleware.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthUser(r.Context()); !ok {
			slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			writeError(w, errors.Unauthorized("Unauthorized"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole returns a middleware that checks if the authenticated user has any of the specified roles.
// Returns 401 Unauthorized if not authenticated.
// Returns 403 Forbidden if authenticated but missing required role.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetAuthUser(r.Context())
			if !ok {
				writeError(w, errors.Unauthorized("Unauthorized"))
				return
			}

			if !HasRole(user, roles...) {
				slog.Warn("User lacks required role",
					"userId", user.UserId,
					"userRoles", user.Roles,
					"requiredRoles", roles)
				writeError(w, errors.Forbidden("Forbidden: insufficient permissions"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
