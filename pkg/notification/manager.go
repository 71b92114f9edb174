package notification

import (
	"fmt"
	"log/slog"
)

// NotificationSystem represents a delivery channel.
type NotificationSystem string

const (
	EmailSystem NotificationSystem = "email"

	UserSwitchedNotice NoticeType = "user_switched"
	SwitchedBackNotice NoticeType = "switched_back"
	ExampleNotice      NoticeType = "example"
)

// NotificationManager manages notifiers and notification templates.
type NotificationManager struct {
	BaseUrl              string
	notifiers            map[NotificationSystem]Notifier
	notificationRegistry map[NoticeType]map[NotificationSystem]NoticeTemplate
}

// NewNotificationManager creates and returns a new NotificationManager.
// baseUrl is exposed to templates as {{.BaseUrl}}.
func NewNotificationManager(baseUrl string) *NotificationManager {
	return &NotificationManager{
		BaseUrl:              baseUrl,
		notifiers:            make(map[NotificationSystem]Notifier),
		notificationRegistry: make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a specific system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.notifiers[system] = notifier
}

// RegisterNotification adds or replaces the template for noticeType on system.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	if noticeType == "" || system == "" {
		return fmt.Errorf("invalid input: notification type and system cannot be empty")
	}
	if template.Text == "" && template.Html == "" {
		return fmt.Errorf("invalid input: template for %s needs a text or html body", noticeType)
	}

	if _, exists := nm.notificationRegistry[noticeType]; !exists {
		nm.notificationRegistry[noticeType] = make(map[NotificationSystem]NoticeTemplate)
	}
	nm.notificationRegistry[noticeType][system] = template
	return nil
}

// Send delivers notification on every system that has a template for noticeType.
func (nm *NotificationManager) Send(noticeType NoticeType, notification NotificationData) error {
	systemTemplates, exists := nm.notificationRegistry[noticeType]
	if !exists {
		return fmt.Errorf("no templates registered for notification type: %s", noticeType)
	}

	if notification.Data == nil {
		notification.Data = map[string]string{}
	}
	if _, ok := notification.Data["BaseUrl"]; !ok {
		notification.Data["BaseUrl"] = nm.BaseUrl
	}

	for system, template := range systemTemplates {
		notifier, exists := nm.notifiers[system]
		if !exists {
			return fmt.Errorf("no notifier registered for system: %s", system)
		}
		if notification.Subject != "" {
			template.Subject = notification.Subject
		}
		if err := notifier.Send(noticeType, notification, template); err != nil {
			slog.Error("Failed to send notification", "type", noticeType, "system", system, "err", err)
			return err
		}
	}
	return nil
}
