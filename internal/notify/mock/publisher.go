package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// Publisher satisfies models.DoorPublisher for testing and records every event.
type Publisher struct {
	PublishFunc func(ctx context.Context, event models.DoorEvent) error

	mu     sync.Mutex
	events []models.DoorEvent
}

func (p *Publisher) Publish(ctx context.Context, event models.DoorEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	if p.PublishFunc != nil {
		return p.PublishFunc(ctx, event)
	}
	return nil
}

func (p *Publisher) Name() string { return "mock" }
func (p *Publisher) Close() error { return nil }

// Events returns a copy of the events published so far.
func (p *Publisher) Events() []models.DoorEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.DoorEvent(nil), p.events...)
}

var _ models.DoorPublisher = (*Publisher)(nil)
