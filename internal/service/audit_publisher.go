// Package service publishes account events to RabbitMQ.  Publishing is best
// effort: errors are logged and returned so callers can ignore them without
// interrupting the request that triggered the event.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/members-area/internal/config"
	"github.com/iliyamo/members-area/internal/logger"
	"github.com/iliyamo/members-area/internal/queue"
)

// Publisher sends account events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev queue.AccountEvent) error
}

// NewPublisher returns an AMQP publisher when auditing is enabled and a
// no-op otherwise.
func NewPublisher(cfg config.AuditConfig, log *logger.Logger) Publisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return &AMQPPublisher{URL: cfg.URL, Queue: cfg.Queue, Timeout: 3 * time.Second, Log: log}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.AccountEvent) error { return nil }

// AMQPPublisher dials the broker for each event and publishes it as a
// persistent JSON message on the default exchange.
type AMQPPublisher struct {
	URL     string
	Queue   string
	Timeout time.Duration
	Log     *logger.Logger
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.AccountEvent) error {
	if err := p.publish(ctx, ev); err != nil {
		p.Log.Warn("publish account event failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
		return err
	}
	return nil
}

func (p *AMQPPublisher) publish(ctx context.Context, ev queue.AccountEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.Timeout)})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
