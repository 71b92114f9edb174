package capability

import (
	"context"
)

const (
	SwitchToUser = "switch_to_user"
	SwitchOff    = "switch_off"
)

// RegisterSwitching adds the two switching capabilities to e:
//
//	switch_to_user(actor, target): edit_user over target, and target is not actor
//	switch_off(actor):             edit_users
//
// Unrestricted users skip the capability filter, so the self switch is also
// denied through the required capabilities.
func RegisterSwitching(e *Engine) {
	e.AddCapFilter(func(ctx context.Context, caps Caps, required []string, check Check) Caps {
		switch check.Cap {
		case SwitchToUser:
			target := check.Arg(0)
			caps[SwitchToUser] = target != "" &&
				e.UserCan(ctx, check.UserID, EditUser, target) &&
				target != check.UserID
		case SwitchOff:
			caps[SwitchOff] = e.UserCan(ctx, check.UserID, EditUsers)
		}
		return caps
	})

	e.AddMetaCapFilter(func(ctx context.Context, required []string, check Check) []string {
		if check.Cap == SwitchToUser && check.Arg(0) == check.UserID {
			required = append(required, DoNotAllow)
		}
		return required
	})
}
