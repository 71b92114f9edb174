// Package login is a minimal host login for the switch service. A real login
// or logout always forgets any switch history.
package login

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/errors"
	"github.com/tendant/user-switching/pkg/user"
)

type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (user.User, error)
}

type SessionManager interface {
	Issue(ctx context.Context, w http.ResponseWriter, r *http.Request, u user.User, remember bool) (*client.AuthUser, error)
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// StackClearer forgets every originating user of the client.
type StackClearer interface {
	ClearSwitchState(w http.ResponseWriter, r *http.Request) error
}

type Handle struct {
	users    Authenticator
	sessions SessionManager
	stack    StackClearer
}

func NewHandle(users Authenticator, sessions SessionManager, stack StackClearer) Handle {
	return Handle{users: users, sessions: sessions, stack: stack}
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type UserResponse struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err *errors.Error) {
	render.Status(r, err.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{Code: string(err.Code), Message: err.Message})
}

// Routes expects the session middleware to run first.
func Routes(h Handle) chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.PostLogin)
	r.Post("/logout", h.PostLogout)
	r.With(client.RequireAuth).Get("/me", h.GetMe)
	return r
}

func (h Handle) PostLogin(w http.ResponseWriter, r *http.Request) {
	data := LoginRequest{}
	if err := render.DecodeJSON(r.Body, &data); err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "Unable to parse request body"))
		return
	}

	u, err := h.users.Authenticate(r.Context(), data.Login, data.Password)
	if err != nil {
		if stderrors.Is(err, user.ErrInvalidPassword) {
			slog.Info("Login rejected", "login", data.Login)
		} else {
			slog.Error("Failed authenticating user", "login", data.Login, "err", err)
		}
		writeError(w, r, errors.New(errors.ErrCodeInvalidCredentials, "Username/Password is wrong"))
		return
	}

	ctx := r.Context()
	if err := h.sessions.Clear(ctx, w, r); err != nil {
		slog.Warn("Failed clearing previous session", "err", err)
	}
	authUser, err := h.sessions.Issue(ctx, w, r, u, data.Remember)
	if err != nil {
		slog.Error("Failed issuing session", "user", u, "err", err)
		writeError(w, r, errors.New(errors.ErrCodeInternal, "Internal error"))
		return
	}
	client.SetAuthUser(ctx, authUser)

	if err := h.stack.ClearSwitchState(w, r); err != nil {
		slog.Warn("Failed clearing switch state", "err", err)
	}

	slog.Info("User logged in", "user", u)
	render.JSON(w, r, UserResponse{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName, Roles: u.Roles})
}

func (h Handle) PostLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Clear(ctx, w, r); err != nil {
		slog.Error("Failed clearing session", "err", err)
		writeError(w, r, errors.New(errors.ErrCodeInternal, "Internal error"))
		return
	}
	client.SetAuthUser(ctx, nil)

	if err := h.stack.ClearSwitchState(w, r); err != nil {
		slog.Warn("Failed clearing switch state", "err", err)
	}
	render.NoContent(w, r)
}

func (h Handle) GetMe(w http.ResponseWriter, r *http.Request) {
	u, _ := client.GetAuthUser(r.Context())
	render.JSON(w, r, UserResponse{ID: u.UserId, Login: u.Login, DisplayName: u.DisplayName, Roles: u.Roles})
}
