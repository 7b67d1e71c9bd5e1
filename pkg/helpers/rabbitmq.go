package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrPublishNacked = errors.New("broker rejected message")

// RabbitQueue is one durable queue on its own connection. The channel runs in confirm mode
// so a publish returns only after the broker has taken the message.
type RabbitQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	Queue string
}

// DialRabbitQueue connects and declares queue. prefetch > 0 bounds unacked deliveries for consumers.
func DialRabbitQueue(url, queue string, prefetch int) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	q := &RabbitQueue{conn: conn, Queue: queue}
	if q.ch, err = conn.Channel(); err != nil {
		q.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := q.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		q.Close()
		return nil, fmt.Errorf("declare %s: %w", queue, err)
	}
	if prefetch > 0 {
		if err := q.ch.Qos(prefetch, 0, false); err != nil {
			q.Close()
			return nil, fmt.Errorf("qos: %w", err)
		}
	}
	if err := q.ch.Confirm(false); err != nil {
		q.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	return q, nil
}

func (q *RabbitQueue) Close() {
	if q == nil {
		return
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}

// PublishJSON sends body as a persistent message and waits for the broker confirm.
func (q *RabbitQueue) PublishJSON(ctx context.Context, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	conf, err := q.ch.PublishWithDeferredConfirmWithContext(ctx, "", q.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         b,
	})
	if err != nil {
		return err
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPublishNacked
	}
	return nil
}

// Consume starts manual-ack delivery from the queue.
func (q *RabbitQueue) Consume(consumer string) (<-chan amqp.Delivery, error) {
	return q.ch.Consume(q.Queue, consumer, false, false, false, false, nil)
}
