package capability

import (
	"context"
	"log/slog"
	"slices"

	"github.com/tendant/user-switching/pkg/user"
	"golang.org/x/exp/maps"
)

const (
	// DoNotAllow can never be satisfied, not even by an unrestricted user.
	DoNotAllow = "do_not_allow"

	EditUser  = "edit_user"
	EditUsers = "edit_users"
	Read      = "read"

	DefaultUnrestrictedRole = "superadmin"
)

// Caps is a capability map. A capability is held when its value is true.
type Caps map[string]bool

// Check describes one capability query: can UserID do Cap, with Args (usually a target user id).
type Check struct {
	Cap    string
	UserID string
	Args   []string
}

// Arg returns the i-th argument or "".
func (c Check) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// CapFilter may grant or revoke entries in the actor's capability map for one
// check. It runs after the base capabilities are resolved, on a fresh copy.
type CapFilter func(ctx context.Context, caps Caps, required []string, check Check) Caps

// MetaCapFilter may change the primitive capabilities a check requires.
type MetaCapFilter func(ctx context.Context, required []string, check Check) []string

// UserLookup is the part of the user repository the engine needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (user.User, error)
}

// Engine is the host permission pipeline. Nothing is cached: every UserCan
// resolves roles, maps meta capabilities and runs the filters again.
type Engine struct {
	users            UserLookup
	roles            RoleSource
	unrestrictedRole string
	capFilters       []CapFilter
	metaCapFilters   []MetaCapFilter
}

type Option func(*Engine)

// WithUnrestrictedRole names the role whose holders skip capability checks.
func WithUnrestrictedRole(role string) Option {
	return func(e *Engine) {
		e.unrestrictedRole = role
	}
}

func NewEngine(users UserLookup, roles RoleSource, opts ...Option) *Engine {
	e := &Engine{
		users:            users,
		roles:            roles,
		unrestrictedRole: DefaultUnrestrictedRole,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddCapFilter registers a filter on the actor's capabilities.
func (e *Engine) AddCapFilter(f CapFilter) {
	e.capFilters = append(e.capFilters, f)
}

// AddMetaCapFilter registers a filter on the required capabilities.
func (e *Engine) AddMetaCapFilter(f MetaCapFilter) {
	e.metaCapFilters = append(e.metaCapFilters, f)
}

// IsUnrestricted reports whether u holds the unrestricted role.
func (e *Engine) IsUnrestricted(u user.User) bool {
	return e.unrestrictedRole != "" && slices.Contains(u.Roles, e.unrestrictedRole)
}

// MapMetaCap maps a capability to the primitive capabilities userID needs for it.
func (e *Engine) MapMetaCap(ctx context.Context, capability, userID string, args ...string) []string {
	switch capability {
	case EditUser:
		if len(args) == 0 {
			return []string{EditUsers}
		}
		if args[0] == userID {
			// Everyone may edit their own account.
			return []string{}
		}
		target, err := e.users.GetUser(ctx, args[0])
		if err == nil && e.IsUnrestricted(target) {
			actor, err := e.users.GetUser(ctx, userID)
			if err != nil || !e.IsUnrestricted(actor) {
				return []string{DoNotAllow}
			}
		}
		return []string{EditUsers}
	default:
		return []string{capability}
	}
}

// UserCan reports whether userID holds capability, given args.
func (e *Engine) UserCan(ctx context.Context, userID, capability string, args ...string) bool {
	actor, err := e.users.GetUser(ctx, userID)
	if err != nil {
		slog.Debug("Capability check for unknown user", "user", userID, "cap", capability, "err", err)
		return false
	}

	check := Check{Cap: capability, UserID: userID, Args: args}

	required := e.MapMetaCap(ctx, capability, userID, args...)
	for _, f := range e.metaCapFilters {
		required = f(ctx, required, check)
	}

	if slices.Contains(required, DoNotAllow) {
		return false
	}
	if e.IsUnrestricted(actor) {
		return true
	}

	caps, err := e.roles.CapabilitiesForRoles(ctx, actor.Roles)
	if err != nil {
		slog.Error("Failed resolving role capabilities", "err", err, "user", userID)
		return false
	}
	for _, f := range e.capFilters {
		caps = f(ctx, caps, required, check)
	}

	for _, req := range required {
		if !caps[req] {
			if slog.Default().Enabled(ctx, slog.LevelDebug) {
				held := maps.Keys(caps)
				slices.Sort(held)
				slog.Debug("Capability denied", "user", userID, "cap", capability, "missing", req, "held", held)
			}
			return false
		}
	}
	return true
}
