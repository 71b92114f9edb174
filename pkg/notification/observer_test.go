package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/user-switching/pkg/switching"
	"github.com/tendant/user-switching/pkg/user"
)

func newTestSwitchNotifier(t *testing.T) (*SwitchNotifier, *MockNotifier) {
	t.Helper()
	users := user.NewInMemoryRepository()
	users.Seed(
		user.User{ID: "1", Login: "admin", DisplayName: "Admin", Email: "admin@example.com", Roles: []string{"administrator"}},
		user.User{ID: "2", Login: "editor", DisplayName: "Editor", Email: "editor@example.com", Roles: []string{"editor"}},
		user.User{ID: "3", Login: "nomail", DisplayName: "No Mail", Roles: []string{"subscriber"}},
	)

	mock := &MockNotifier{}
	nm, err := NewNotificationManagerWithOptions("http://localhost:4000", WithNotifier(EmailSystem, mock), WithDefaultTemplates())
	require.NoError(t, err)
	return NewSwitchNotifier(nm, users), mock
}

func TestSwitchNotifier(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("switch to mails the target", func(t *testing.T) {
		n, mock := newTestSwitchNotifier(t)
		n.SwitchedTo(ctx, switching.Event{UserID: "2", OldUserID: "1", At: at})
		n.Wait()

		sent := mock.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "editor@example.com", sent[0].To)
		assert.Equal(t, "Admin", sent[0].Data["ActorName"])
		assert.Equal(t, "Editor", sent[0].Data["DisplayName"])
		assert.Equal(t, []NoticeType{UserSwitchedNotice}, mock.SentTypes)
	})

	t.Run("switch back mails the account left", func(t *testing.T) {
		n, mock := newTestSwitchNotifier(t)
		n.SwitchedBack(ctx, switching.Event{UserID: "1", OldUserID: "2", At: at})
		n.Wait()

		sent := mock.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "editor@example.com", sent[0].To)
		assert.Equal(t, []NoticeType{SwitchedBackNotice}, mock.SentTypes)
	})

	t.Run("anonymous switch in is silent", func(t *testing.T) {
		n, mock := newTestSwitchNotifier(t)
		n.SwitchedTo(ctx, switching.Event{UserID: "2", At: at})
		n.SwitchedOff(ctx, switching.Event{OldUserID: "2", At: at})
		n.Wait()
		assert.Empty(t, mock.Sent())
	})

	t.Run("accounts without email are skipped", func(t *testing.T) {
		n, mock := newTestSwitchNotifier(t)
		n.SwitchedTo(ctx, switching.Event{UserID: "3", OldUserID: "1", At: at})
		n.SwitchedTo(ctx, switching.Event{UserID: "404", OldUserID: "1", At: at})
		n.Wait()
		assert.Empty(t, mock.Sent())
	})
}

type blockingNotifier struct {
	release chan struct{}
	sent    chan NotificationData
}

func (b *blockingNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	<-b.release
	b.sent <- notification
	return nil
}

func TestSwitchNotifierDoesNotBlockOnDelivery(t *testing.T) {
	users := user.NewInMemoryRepository()
	users.Seed(
		user.User{ID: "1", Login: "admin", DisplayName: "Admin", Email: "admin@example.com"},
		user.User{ID: "2", Login: "editor", DisplayName: "Editor", Email: "editor@example.com"},
	)
	slow := &blockingNotifier{release: make(chan struct{}), sent: make(chan NotificationData, 1)}
	nm, err := NewNotificationManagerWithOptions("http://localhost:4000", WithNotifier(EmailSystem, slow), WithDefaultTemplates())
	require.NoError(t, err)
	n := NewSwitchNotifier(nm, users)

	returned := make(chan struct{})
	go func() {
		n.SwitchedTo(context.Background(), switching.Event{UserID: "2", OldUserID: "1", At: time.Now()})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("SwitchedTo waited for the mail server")
	}

	close(slow.release)
	n.Wait()
	got := <-slow.sent
	assert.Equal(t, "editor@example.com", got.To)
}
