package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/user-switching/pkg/capability"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/errors"
	"github.com/tendant/user-switching/pkg/nonce"
	"github.com/tendant/user-switching/pkg/switching"
	"github.com/tendant/user-switching/pkg/user"
)

const (
	ActionSwitchToUser    = "switch_to_user"
	ActionSwitchToOldUser = "switch_to_olduser"
	ActionSwitchOff       = "switch_off"
)

// Authorizer is the host permission check.
type Authorizer interface {
	UserCan(ctx context.Context, userID, capability string, args ...string) bool
}

// NonceService issues and verifies action tokens.
type NonceService interface {
	Create(action, userID, sessionID string) string
	Verify(action, userID, sessionID, token string) int
}

// Rememberer tells whether the active credential is a remembered one.
type Rememberer interface {
	Remember(u *client.AuthUser) bool
}

// LoginRedirectFunc lets the host pick where u lands after a switch.
// redirectTo is the cleaned caller target, requested the raw one. Returning ""
// selects the default landing page.
type LoginRedirectFunc func(r *http.Request, redirectTo, requested string, u user.User) string

type Config struct {
	// Prefix is where the handler is mounted; links point at it.
	Prefix   string
	SiteURL  string
	HomeURL  string
	AdminURL string
	UsersURL string
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "/switch"
	}
	if c.HomeURL == "" {
		c.HomeURL = "/"
	}
	if c.AdminURL == "" {
		c.AdminURL = "/admin/"
	}
	if c.UsersURL == "" {
		c.UsersURL = "/admin/users"
	}
	return c
}

type Handle struct {
	engine        *switching.Engine
	caps          Authorizer
	nonces        NonceService
	sessions      Rememberer
	cfg           Config
	siteHost      string
	loginRedirect LoginRedirectFunc
	links         *Links
}

type Option func(*Handle)

func WithLoginRedirect(f LoginRedirectFunc) Option {
	return func(h *Handle) {
		h.loginRedirect = f
	}
}

func NewHandle(engine *switching.Engine, caps Authorizer, nonces NonceService, sessions Rememberer, cfg Config, opts ...Option) *Handle {
	cfg = cfg.withDefaults()
	h := &Handle{
		engine:   engine,
		caps:     caps,
		nonces:   nonces,
		sessions: sessions,
		cfg:      cfg,
	}
	if u, err := url.Parse(cfg.SiteURL); err == nil {
		h.siteHost = u.Host
	}
	h.links = NewLinks(cfg.Prefix, engine, caps, nonces)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Links returns the URL builders for this handler.
func (h *Handle) Links() *Links {
	return h.links
}

// Routes expects the session middleware to run first, so the request carries an identity slot.
func (h *Handle) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Dispatch)
	r.Post("/", h.Dispatch)
	r.Get("/state", h.State)
	return r
}

// Dispatch runs the one action named by the "action" parameter.
func (h *Handle) Dispatch(w http.ResponseWriter, r *http.Request) {
	switch r.FormValue("action") {
	case ActionSwitchToUser:
		h.switchToUser(w, r)
	case ActionSwitchToOldUser:
		h.switchToOldUser(w, r)
	case ActionSwitchOff:
		h.switchOff(w, r)
	default:
		http.NotFound(w, r)
	}
}

func actor(ctx context.Context) (*client.AuthUser, string, string) {
	u, ok := client.GetAuthUser(ctx)
	if !ok {
		return nil, "", ""
	}
	return u, u.UserId, u.SessionID
}

func (h *Handle) verifyToken(r *http.Request, scope string) bool {
	userID, sessionID := h.links.binding(r)
	return h.nonces.Verify(scope, userID, sessionID, r.FormValue(nonce.Param)) > 0
}

func (h *Handle) switchToUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	targetID := r.FormValue("user_id")

	if !h.verifyToken(r, ActionSwitchToUser+"_"+targetID) {
		writeError(w, r, errors.New(errors.ErrCodeInvalidActionToken, "The link you followed has expired."))
		return
	}
	current, currentID, _ := actor(ctx)
	if current == nil || !h.caps.UserCan(ctx, currentID, capability.SwitchToUser, targetID) {
		writeError(w, r, errors.New(errors.ErrCodeInsufficientPermissions, "Sorry, you are not allowed to switch to this user."))
		return
	}

	target, err := h.engine.SwitchTo(ctx, w, r, targetID, h.sessions.Remember(current), true)
	if err != nil {
		slog.Error("Failed to switch user", "err", err, "user", targetID, "old_user", currentID)
		writeError(w, r, errors.SwitchFailed(err))
		return
	}

	flags := map[string]string{"user_switched": "true"}
	if redirectTo := h.redirectTarget(r, &target); redirectTo != "" {
		h.redirect(w, r, AddQueryArgs(redirectTo, flags))
	} else if !h.caps.UserCan(ctx, target.ID, capability.Read) {
		h.redirect(w, r, AddQueryArgs(h.cfg.HomeURL, flags))
	} else {
		h.redirect(w, r, AddQueryArgs(h.cfg.AdminURL, flags))
	}
}

func (h *Handle) switchToOldUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rec, ok := h.engine.CurrentSwitchState(r)
	if !ok {
		writeError(w, r, errors.InvalidOldUser(switching.ErrInvalidOldUser))
		return
	}
	if !h.verifyToken(r, ActionSwitchToOldUser+"_"+rec.UserID) {
		writeError(w, r, errors.New(errors.ErrCodeInvalidActionToken, "The link you followed has expired."))
		return
	}

	current, _, _ := actor(ctx)
	oldUser, err := h.engine.SwitchTo(ctx, w, r, rec.UserID, h.sessions.Remember(current), false)
	if err != nil {
		slog.Error("Failed to switch back", "err", err, "user", rec.UserID)
		writeError(w, r, errors.SwitchFailed(err))
		return
	}

	flags := map[string]string{"user_switched": "true", "switched_back": "true"}
	redirectTo := h.redirectTarget(r, &oldUser)
	if redirectTo == "" {
		redirectTo = h.cfg.UsersURL
	}
	h.redirect(w, r, AddQueryArgs(redirectTo, flags))
}

func (h *Handle) switchOff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, currentID, _ := actor(ctx)

	if !h.verifyToken(r, ActionSwitchOff+"_"+currentID) {
		writeError(w, r, errors.New(errors.ErrCodeInvalidActionToken, "The link you followed has expired."))
		return
	}
	if current == nil {
		writeError(w, r, errors.SwitchOffFailed(switching.ErrNotAuthenticated))
		return
	}
	if !h.caps.UserCan(ctx, currentID, capability.SwitchOff) {
		writeError(w, r, errors.New(errors.ErrCodeInsufficientPermissions, "Sorry, you are not allowed to switch off."))
		return
	}

	if err := h.engine.SwitchOff(ctx, w, r); err != nil {
		slog.Error("Failed to switch off", "err", err, "user", currentID)
		writeError(w, r, errors.SwitchOffFailed(err))
		return
	}

	redirectTo := h.redirectTarget(r, nil)
	if redirectTo == "" {
		redirectTo = h.cfg.HomeURL
	}
	h.redirect(w, r, AddQueryArgs(redirectTo, map[string]string{"switched_off": "true"}))
}

// redirectTarget is the caller's redirect_to without stale markers, passed
// through the login redirect hook when switching into u. Unsafe targets are dropped.
func (h *Handle) redirectTarget(r *http.Request, u *user.User) string {
	requested := r.FormValue("redirect_to")
	var redirectTo string
	if requested != "" {
		redirectTo = RemoveQueryArgs(requested)
	}
	if u != nil && h.loginRedirect != nil {
		redirectTo = h.loginRedirect(r, redirectTo, requested, *u)
	}
	if redirectTo != "" && !isSafeRedirect(redirectTo, r.Host, h.siteHost) {
		slog.Warn("Ignoring unsafe redirect target", "redirect_to", redirectTo)
		return ""
	}
	return redirectTo
}

func (h *Handle) redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusFound)
}

// writeError renders err as a plain text page with its mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "Something went wrong."
	if e, ok := err.(*errors.Error); ok {
		msg = e.Message
	}
	render.Status(r, errors.HTTPStatus(err))
	render.PlainText(w, r, msg)
}

type StateUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type StateResponse struct {
	Switched      bool       `json:"switched"`
	User          *StateUser `json:"user,omitempty"`
	OldUser       *StateUser `json:"old_user,omitempty"`
	SwitchBackURL string     `json:"switch_back_url,omitempty"`
	SwitchOffURL  string     `json:"switch_off_url,omitempty"`
}

func stateUser(u user.User) *StateUser {
	return &StateUser{ID: u.ID, Login: u.Login, DisplayName: u.DisplayName}
}

// State reports the current switch state for menus and notices.
func (h *Handle) State(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StateResponse{}

	current, ok := client.GetAuthUser(ctx)
	if ok {
		resp.User = &StateUser{ID: current.UserId, Login: current.Login, DisplayName: current.DisplayName}
		if h.caps.UserCan(ctx, current.UserId, capability.SwitchOff) {
			resp.SwitchOffURL = h.links.SwitchOffURL(r, current.UserId)
		}
	}

	if old, found := h.engine.OldUser(ctx, r); found {
		resp.Switched = ok
		resp.OldUser = stateUser(old)
		resp.SwitchBackURL = h.links.SwitchBackURL(r, old.ID)
	}

	render.JSON(w, r, resp)
}
