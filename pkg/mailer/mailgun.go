package mailer

import (
	"context"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// Mailgun sends through the Mailgun HTTP API.
type Mailgun struct {
	Domain  string
	APIKey  string
	From    string
	Timeout time.Duration
}

func NewMailgun(domain, apiKey, from string, timeout time.Duration) *Mailgun {
	return &Mailgun{Domain: domain, APIKey: apiKey, From: from, Timeout: timeout}
}

func (m *Mailgun) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	client := mg.NewMailgun(m.Domain, m.APIKey)
	message := client.NewMessage(m.From, msg.Subject, msg.Text, msg.To)
	if msg.HTML != "" {
		message.SetHtml(msg.HTML)
	}
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}
	_, _, err := client.Send(ctx, message)
	return err
}
