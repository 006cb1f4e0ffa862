// Package notify builds the door state-change publisher selected by config.
package notify

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/sensordash/internal/config"
	"github.com/kiranshivaraju/sensordash/internal/notify/amqp"
	"github.com/kiranshivaraju/sensordash/internal/notify/mqtt"
	"github.com/kiranshivaraju/sensordash/internal/notify/redispub"
	"github.com/kiranshivaraju/sensordash/pkg/models"
)

// NewPublisher constructs the door publisher for cfg.Backend. rc is only used
// by the redis backend. Called once at server startup.
func NewPublisher(cfg config.NotifyConfig, rc redispub.Publisher) (models.DoorPublisher, error) {
	switch cfg.Backend {
	case "", "none":
		return Noop{}, nil
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis notify backend requires a redis client")
		}
		return redispub.NewPublisher(rc, cfg.RedisChannel), nil
	case "mqtt":
		p, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "amqp":
		p, err := amqp.NewPublisher(cfg.AMQP)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notify backend %q: must be one of none, mqtt, redis, amqp", cfg.Backend)
	}
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(_ context.Context, _ models.DoorEvent) error { return nil }
func (Noop) Name() string                                        { return "none" }
func (Noop) Close() error                                        { return nil }

var _ models.DoorPublisher = Noop{}
