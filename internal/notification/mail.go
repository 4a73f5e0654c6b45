package notification

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the SMTP settings of the mail notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.Port != 0 && c.From != ""
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailNotifier sends email-channel messages over SMTP and hands every other
// channel to a fallback notifier.
type MailNotifier struct {
	from     string
	dialer   sender
	fallback Notifier
}

// NewMailNotifier builds an SMTP notifier.
func NewMailNotifier(cfg SMTPConfig, fallback Notifier) *MailNotifier {
	return &MailNotifier{
		from:     cfg.From,
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		fallback: fallback,
	}
}

// Send delivers an email or forwards the message to the fallback.
func (n *MailNotifier) Send(ctx context.Context, message Message) error {
	if message.Channel != ChannelEmail {
		if n.fallback == nil {
			return nil
		}
		return n.fallback.Send(ctx, message)
	}
	if message.Destination == "" {
		return fmt.Errorf("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", message.Destination)
	msg.SetHeader("Subject", message.Subject)
	msg.SetBody("text/plain", message.Body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s mail: %w", message.Kind, err)
	}
	return nil
}
