package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

const (
	connectTimeout = 10 * time.Second
	// qos 1 so the broker acknowledges each change. Sessions are clean; the
	// retained message is what a reconnecting dashboard sees.
	qos = 1
)

// Publisher sends door events to an MQTT broker. Messages are retained so a
// new subscriber immediately sees the current door state.
type Publisher struct {
	client paho.Client
	prefix string
}

// NewPublisher connects to cfg.BrokerURL and returns a ready Publisher.
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", err)
	}

	return &Publisher{client: client, prefix: cfg.TopicPrefix}, nil
}

// Topic returns the door topic for a tenant, e.g. sensordash/<tenant>/door.
func Topic(prefix string, tenantID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/door", prefix, tenantID)
}

func (p *Publisher) Publish(ctx context.Context, event models.DoorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode door event: %w", err)
	}

	topic := Topic(p.prefix, event.TenantID)
	token := p.client.Publish(topic, qos, true, payload)

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Name() string { return "mqtt" }

func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

var _ models.DoorPublisher = (*Publisher)(nil)
