package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrInvalidMessage = errors.New("email requires a recipient and a subject")

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers a message. Implementations are constructed at startup and injected.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Publisher is the part of helpers.RabbitQueue the queue sender needs.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueSender hands messages to the email worker through RabbitMQ.
type QueueSender struct {
	Pub Publisher
}

func NewQueueSender(pub Publisher) *QueueSender {
	return &QueueSender{Pub: pub}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := s.Pub.PublishJSON(ctx, NewEmailJob(msg, time.Now())); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// LogSender only logs; used when MAIL_DRIVER=log.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("email delivery disabled, message dropped")
	}
	return nil
}
