// Package notification sends messages to account owners.
//
// A NotificationManager maps notice types to per-channel templates and
// delivers through the registered Notifier for each channel. EmailNotifier
// sends over SMTP with github.com/wneessen/go-mail; MockNotifier records
// messages for tests.
//
//	nm, err := notification.NewNotificationManagerWithOptions(siteURL,
//	    notification.WithSMTP(smtpConfig),
//	    notification.WithDefaultTemplates(),
//	)
//	engine.AddObserver(notification.NewSwitchNotifier(nm, users))
//
// SwitchNotifier is a switching.Observer that mails the owner of an account
// when another user switches into it, and again when they switch back out.
package notification
