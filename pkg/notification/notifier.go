package notification

// NoticeType names one kind of message, e.g. "user_switched".
type NoticeType string

type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type NotificationData struct {
	To      string            // Recipient identifier (e.g., email address)
	Subject string            // Optional override of the template subject
	Body    string            // Optional plain body used when the template has none
	Data    map[string]string // Template values
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
