package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends door events to a RabbitMQ topic exchange with routing key
// door.<tenant>. Messages are transient; a lost event is recovered by the
// next dashboard poll.
type Publisher struct {
	url      string
	exchange string

	m    sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials cfg.URL and declares the exchange.
func NewPublisher(cfg config.AMQPConfig) (*Publisher, error) {
	p := &Publisher{url: cfg.URL, exchange: cfg.Exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// RoutingKey returns the routing key for a tenant's door events.
func RoutingKey(event models.DoorEvent) string {
	return fmt.Sprintf("door.%s", event.TenantID)
}

// connect must be called with p.m held or before p is shared.
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) Publish(ctx context.Context, event models.DoorEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode door event: %w", err)
	}

	p.m.Lock()
	defer p.m.Unlock()

	// Reconnect once if the broker dropped us since the last publish.
	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish door event: %w", err)
	}
	return nil
}

func (p *Publisher) Name() string { return "amqp" }

func (p *Publisher) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

var _ models.DoorPublisher = (*Publisher)(nil)
