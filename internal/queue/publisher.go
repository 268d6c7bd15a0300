// Package queue publishes booking lifecycle events to RabbitMQ so
// downstream consumers (email, SMS, guide rosters) can react without
// being in the booking request path.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/summitcamp/booking-backend/internal/config"
	"github.com/summitcamp/booking-backend/internal/models"
)

// Publisher dispatches booking state changes onto a durable queue.
// Messages are marked persistent so they survive broker restarts. A lost
// connection is re-dialed lazily on the next publish.
type Publisher struct {
	cfg    config.QueueConfig
	logger *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher creates a Publisher and establishes the initial connection.
// A dial failure is returned so the caller can fall back to a log-only
// dispatcher rather than run with a silently broken queue.
func NewPublisher(cfg config.QueueConfig, logger *logrus.Logger) (*Publisher, error) {
	p := &Publisher{cfg: cfg, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.cfg.QueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", p.cfg.QueueName, err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// DispatchStateChange publishes the event as a persistent JSON message.
// Failures are returned to the caller, which logs and moves on; delivery
// must never affect booking state.
func (p *Publisher) DispatchStateChange(ctx context.Context, event models.BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.cfg.QueueName, false, false, pub); err != nil {
		// Drop the broken channel so the next publish re-dials.
		p.ch = nil
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"booking_id": event.BookingID,
		"queue":      p.cfg.QueueName,
		"to":         event.NewStatus,
	}).Debug("Published booking event")
	return nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
