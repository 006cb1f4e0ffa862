package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Publisher is the part of the cache used to fan out messages.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// DoorPublisher publishes door events on a per-tenant Redis pub/sub channel.
type DoorPublisher struct {
	client  Publisher
	channel string
}

func NewPublisher(client Publisher, channel string) *DoorPublisher {
	return &DoorPublisher{client: client, channel: channel}
}

// Channel returns the channel events for tenantID are published on.
func (p *DoorPublisher) Channel(event models.DoorEvent) string {
	return fmt.Sprintf("%s:%s", p.channel, event.TenantID)
}

func (p *DoorPublisher) Publish(ctx context.Context, event models.DoorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode door event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(event), payload); err != nil {
		return fmt.Errorf("publish door event: %w", err)
	}
	return nil
}

func (p *DoorPublisher) Name() string { return "redis" }

// Close is a no-op; the Redis client is owned by the cache.
func (p *DoorPublisher) Close() error { return nil }

var _ models.DoorPublisher = (*DoorPublisher)(nil)
