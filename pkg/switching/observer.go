package switching

import (
	"context"
	"time"
)

// Event describes one identity change. UserID is the identity active after the
// change (empty after a switch off) and OldUserID the one active before it
// (empty when nobody was logged in).
type Event struct {
	UserID    string    `json:"user_id,omitempty"`
	OldUserID string    `json:"old_user_id,omitempty"`
	At        time.Time `json:"at"`
}

// Observer is notified after every successful switch.
type Observer interface {
	SwitchedTo(ctx context.Context, e Event)
	SwitchedBack(ctx context.Context, e Event)
	SwitchedOff(ctx context.Context, e Event)
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	OnSwitchTo   func(ctx context.Context, e Event)
	OnSwitchBack func(ctx context.Context, e Event)
	OnSwitchOff  func(ctx context.Context, e Event)
}

func (o ObserverFuncs) SwitchedTo(ctx context.Context, e Event) {
	if o.OnSwitchTo != nil {
		o.OnSwitchTo(ctx, e)
	}
}

func (o ObserverFuncs) SwitchedBack(ctx context.Context, e Event) {
	if o.OnSwitchBack != nil {
		o.OnSwitchBack(ctx, e)
	}
}

func (o ObserverFuncs) SwitchedOff(ctx context.Context, e Event) {
	if o.OnSwitchOff != nil {
		o.OnSwitchOff(ctx, e)
	}
}

// Observers fans every notification out, in registration order.
type Observers []Observer

func (os Observers) SwitchedTo(ctx context.Context, e Event) {
	for _, o := range os {
		o.SwitchedTo(ctx, e)
	}
}

func (os Observers) SwitchedBack(ctx context.Context, e Event) {
	for _, o := range os {
		o.SwitchedBack(ctx, e)
	}
}

func (os Observers) SwitchedOff(ctx context.Context, e Event) {
	for _, o := range os {
		o.SwitchedOff(ctx, e)
	}
}
