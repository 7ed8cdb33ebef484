// Package notify implements eduAuth.NotificationSender over SMTP (gomail)
// and over a zap logger for local development.
package notify
