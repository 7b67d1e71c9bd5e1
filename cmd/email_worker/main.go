package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/saas-auth/config"
	"github.com/oksasatya/saas-auth/pkg/helpers"
	"github.com/oksasatya/saas-auth/pkg/mailer"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-email-worker", cfg.Env, cfg.LogLevel)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQEmailQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}
	if cfg.MailgunDomain == "" || cfg.MailgunAPIKey == "" {
		log.Fatal("Mailgun not configured")
	}

	q, err := helpers.DialRabbitQueue(cfg.RabbitMQURL, cfg.RabbitMQEmailQueue, 16)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	msgs, err := q.Consume(cfg.AppName + "-email-worker")
	if err != nil {
		q.Close()
		log.Fatalf("consume: %v", err)
	}

	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = cfg.FromName + " <" + cfg.FromEmail + ">"
	}
	mg := mailer.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey, from, cfg.MailSendTimeout)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for msg := range msgs {
			handle(context.Background(), logger, mg, msg)
		}
		close(done)
	}()

	logger.WithField("queue", cfg.RabbitMQEmailQueue).Info("email worker listening")
	<-stop
	logger.Info("shutting down")
	q.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// handle acks sent and undeliverable messages and requeues transient send failures once.
func handle(ctx context.Context, logger *logrus.Logger, sender mailer.Sender, d amqp.Delivery) {
	job, err := decodeJob(d.Body)
	if err != nil {
		logger.WithError(err).Warn("dropping bad email job")
		_ = d.Nack(false, false)
		return
	}
	if err := sender.Send(ctx, job.Message()); err != nil {
		entry := logger.WithError(err).WithField("to", job.To)
		if errors.Is(err, mailer.ErrInvalidMessage) || d.Redelivered {
			entry.Error("email send failed, dropping")
			_ = d.Nack(false, false)
			return
		}
		entry.Warn("email send failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
	if !job.QueuedAt.IsZero() {
		logger.WithField("to", job.To).WithField("queue_delay", time.Since(job.QueuedAt).String()).Debug("email sent")
	}
}

func decodeJob(body []byte) (mailer.EmailJob, error) {
	var job mailer.EmailJob
	err := json.Unmarshal(body, &job)
	return job, err
}
