package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends auth events to a durable queue.
type Publisher interface {
	Publish(ctx context.Context, ev AuthEvent) error
}

// AMQPPublisher publishes each event on a short-lived connection.  Failures
// are logged and returned so callers may ignore them without interrupting
// the request.
type AMQPPublisher struct {
	URL    string
	Queue  string
	Logger *slog.Logger
}

// NewAMQPPublisher returns a publisher for queue on the broker at url.
func NewAMQPPublisher(url, queue string, logger *slog.Logger) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{URL: url, Queue: queue, Logger: logger}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(3 * time.Second)})
	if err != nil {
		p.Logger.WarnContext(ctx, "rabbitmq dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Logger.WarnContext(ctx, "rabbitmq channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := declare(ch, p.Queue); err != nil {
		p.Logger.WarnContext(ctx, "rabbitmq queue declare failed", "queue", p.Queue, "error", err)
		return err
	}

	err = ch.PublishWithContext(ctx, "", p.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		p.Logger.WarnContext(ctx, "rabbitmq publish failed", "event", ev.Type, "error", err)
		return err
	}
	return nil
}

// declare makes sure the durable queue exists.
func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(queue, true, false, false, false, nil)
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AuthEvent) error { return nil }
