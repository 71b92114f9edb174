package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tendant/user-switching/pkg/switching"
	"github.com/tendant/user-switching/pkg/user"
)

// UserLookup resolves the accounts named in switch events.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (user.User, error)
}

// SwitchNotifier emails the owner of an account when someone switches into
// it or leaves it again. Accounts without an email address are skipped.
// Delivery runs in the background so a slow mail server never holds up the
// switch response.
type SwitchNotifier struct {
	manager *NotificationManager
	users   UserLookup
	pending sync.WaitGroup
}

var _ switching.Observer = (*SwitchNotifier)(nil)

func NewSwitchNotifier(manager *NotificationManager, users UserLookup) *SwitchNotifier {
	return &SwitchNotifier{manager: manager, users: users}
}

func (n *SwitchNotifier) SwitchedTo(ctx context.Context, e switching.Event) {
	// Logging into your own account from anonymous is not worth a mail.
	if e.OldUserID == "" {
		return
	}
	n.notify(ctx, UserSwitchedNotice, e.UserID, e.OldUserID, e.At)
}

// SwitchedBack tells the account that was left.
func (n *SwitchNotifier) SwitchedBack(ctx context.Context, e switching.Event) {
	if e.OldUserID == "" || e.OldUserID == e.UserID {
		return
	}
	n.notify(ctx, SwitchedBackNotice, e.OldUserID, e.UserID, e.At)
}

func (n *SwitchNotifier) SwitchedOff(ctx context.Context, e switching.Event) {}

func (n *SwitchNotifier) notify(ctx context.Context, noticeType NoticeType, ownerID, actorID string, at time.Time) {
	owner, err := n.users.GetUser(ctx, ownerID)
	if err != nil {
		slog.Warn("Cannot notify switched account", "user", ownerID, "err", err)
		return
	}
	if owner.Email == "" {
		slog.Debug("Switched account has no email, skipping notice", "user", ownerID)
		return
	}

	actorName := actorID
	if actor, err := n.users.GetUser(ctx, actorID); err == nil && actor.DisplayName != "" {
		actorName = actor.DisplayName
	}

	data := NotificationData{
		To: owner.Email,
		Data: map[string]string{
			"DisplayName": owner.DisplayName,
			"ActorName":   actorName,
			"At":          at.UTC().Format(time.RFC1123),
		},
	}
	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		if err := n.manager.Send(noticeType, data); err != nil {
			slog.Error("Failed to send switch notice", "type", noticeType, "user", ownerID, "err", err)
		}
	}()
}

// Wait blocks until every notice queued so far has been handed to its notifier.
func (n *SwitchNotifier) Wait() {
	n.pending.Wait()
}
