package switching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/olduser"
	"github.com/tendant/user-switching/pkg/sessions"
	"github.com/tendant/user-switching/pkg/user"
)

var (
	ErrUserNotFound     = fmt.Errorf("switching: %w", user.ErrUserNotFound)
	ErrNotAuthenticated = errors.New("switching: no active user")
	ErrInvalidOldUser   = errors.New("switching: no valid old user")
)

// UserLookup resolves user ids.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (user.User, error)
}

// StackStore keeps the originating users of the client.
type StackStore interface {
	Push(w http.ResponseWriter, r *http.Request, userID string) error
	Pop(w http.ResponseWriter, r *http.Request, clearAll bool) error
	LatestValid(r *http.Request) (olduser.Record, bool)
}

// SessionManager issues and clears the login credential. Prepare must not
// write to the client.
type SessionManager interface {
	Prepare(ctx context.Context, u user.User, remember bool) (*sessions.Credential, error)
	Commit(w http.ResponseWriter, r *http.Request, cred *sessions.Credential) error
	Revoke(ctx context.Context, r *http.Request) error
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// Engine performs switches. The active identity lives in the request context
// (see client.WithIdentity); the engine replaces it in place so the rest of
// the request sees the new user.
type Engine struct {
	users     UserLookup
	stack     StackStore
	sessions  SessionManager
	observers Observers

	// Now stamps events. Defaults to time.Now.
	Now func() time.Time
}

func NewEngine(users UserLookup, stack StackStore, sess SessionManager, observers ...Observer) *Engine {
	return &Engine{
		users:     users,
		stack:     stack,
		sessions:  sess,
		observers: observers,
		Now:       time.Now,
	}
}

// AddObserver registers o for every later switch.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

func (e *Engine) event(userID, oldUserID string) Event {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return Event{UserID: userID, OldUserID: oldUserID, At: now()}
}

// SwitchTo makes targetID the active user. With pushStack and an active user,
// that user is remembered on the stack; otherwise one stack frame is dropped,
// which is how a switch back unwinds. On error no cookie is written and the
// active user is unchanged.
func (e *Engine) SwitchTo(ctx context.Context, w http.ResponseWriter, r *http.Request, targetID string, remember, pushStack bool) (user.User, error) {
	target, err := e.users.GetUser(ctx, targetID)
	if errors.Is(err, user.ErrUserNotFound) {
		return user.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, targetID)
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to look up user %s: %w", targetID, err)
	}

	var oldUserID string
	current, authenticated := client.GetAuthUser(ctx)
	if authenticated {
		oldUserID = current.UserId
	}

	pending := newPendingCookies()
	if pushStack && authenticated {
		if err := e.stack.Push(pending, r, current.UserId); err != nil {
			return user.User{}, fmt.Errorf("failed to remember old user: %w", err)
		}
	} else {
		if err := e.stack.Pop(pending, r, false); err != nil {
			return user.User{}, fmt.Errorf("failed to drop old user: %w", err)
		}
	}

	cred, err := e.sessions.Prepare(ctx, target, remember)
	if err != nil {
		return user.User{}, fmt.Errorf("failed to issue session: %w", err)
	}
	// The new cookie replaces the old one, so the old credential only needs revoking.
	if err := e.sessions.Commit(pending, r, cred); err != nil {
		return user.User{}, fmt.Errorf("failed to set session cookie: %w", err)
	}
	if err := e.sessions.Revoke(ctx, r); err != nil {
		return user.User{}, fmt.Errorf("failed to clear session: %w", err)
	}

	pending.flush(w)
	if !client.SetAuthUser(ctx, cred.User) {
		slog.Warn("Request has no identity slot, switched user only takes effect on the next request")
	}

	ev := e.event(target.ID, oldUserID)
	if pushStack {
		slog.Info("Switched user", "user", target.ID, "old_user", oldUserID)
		e.observers.SwitchedTo(ctx, ev)
	} else {
		slog.Info("Switched back", "user", target.ID, "old_user", oldUserID)
		e.observers.SwitchedBack(ctx, ev)
	}
	return target, nil
}

// SwitchOff logs the active user out while remembering them on the stack, so
// they can switch straight back in. On error nothing changes.
func (e *Engine) SwitchOff(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	current, ok := client.GetAuthUser(ctx)
	if !ok {
		return ErrNotAuthenticated
	}

	pending := newPendingCookies()
	if err := e.stack.Push(pending, r, current.UserId); err != nil {
		return fmt.Errorf("failed to remember old user: %w", err)
	}
	if err := e.sessions.Clear(ctx, pending, r); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	pending.flush(w)
	client.SetAuthUser(ctx, nil)

	slog.Info("Switched off", "old_user", current.UserId)
	e.observers.SwitchedOff(ctx, e.event("", current.UserId))
	return nil
}

// CurrentSwitchState returns the verified most recent originating user.
func (e *Engine) CurrentSwitchState(r *http.Request) (olduser.Record, bool) {
	return e.stack.LatestValid(r)
}

// OldUser resolves CurrentSwitchState to a user.
func (e *Engine) OldUser(ctx context.Context, r *http.Request) (user.User, bool) {
	rec, ok := e.CurrentSwitchState(r)
	if !ok {
		return user.User{}, false
	}
	u, err := e.users.GetUser(ctx, rec.UserID)
	if err != nil {
		slog.Debug("Old user no longer resolves", "user", rec.UserID, "err", err)
		return user.User{}, false
	}
	return u, true
}

// CurrentUserSwitched returns the user the active user switched from. It is
// false when nobody is logged in, even if a switch-off record exists.
func (e *Engine) CurrentUserSwitched(ctx context.Context, r *http.Request) (user.User, bool) {
	if _, ok := client.GetAuthUser(ctx); !ok {
		return user.User{}, false
	}
	return e.OldUser(ctx, r)
}

// ClearSwitchState forgets every originating user. Hosts call it on a real
// login or logout.
func (e *Engine) ClearSwitchState(w http.ResponseWriter, r *http.Request) error {
	return e.stack.Pop(w, r, true)
}

var errBodyWrite = errors.New("switching: response body writes are not buffered")

// pendingCookies holds the Set-Cookie headers of a switch until every step
// that can fail has succeeded.
type pendingCookies struct {
	header http.Header
}

func newPendingCookies() *pendingCookies {
	return &pendingCookies{header: http.Header{}}
}

func (p *pendingCookies) Header() http.Header {
	return p.header
}

func (p *pendingCookies) Write([]byte) (int, error) {
	return 0, errBodyWrite
}

func (p *pendingCookies) WriteHeader(int) {}

func (p *pendingCookies) flush(w http.ResponseWriter) {
	for _, v := range p.header.Values("Set-Cookie") {
		w.Header().Add("Set-Cookie", v)
	}
}
