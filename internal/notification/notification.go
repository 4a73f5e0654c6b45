package notification

import (
	"context"
	"log/slog"
)

const (
	// KindMailConfirmation carries the email confirmation token.
	KindMailConfirmation = "mail_confirmation"
	// KindMobileConfirmation carries the phone confirmation token.
	KindMobileConfirmation = "mobile_confirmation"
	// KindDocumentConfirmation carries the document confirmation token.
	KindDocumentConfirmation = "document_confirmation"
	// KindPasswordReset carries the password change key.
	KindPasswordReset = "password_reset"
)

// Channel is the medium a message is delivered through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Channel     Channel
	Destination string
	Subject     string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. It never logs the body,
// which carries one-shot secrets.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message envelope to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"channel", string(message.Channel),
		"destination", message.Destination,
	)
	return nil
}
