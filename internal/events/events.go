// Package events publishes catalog lifecycle messages to a broker.
// The apiserver only produces; notification workers elsewhere consume.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/older-wiser/apiserver/config"
)

// Publisher sends a message on the named subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// NewFromConfig builds the configured broker backend. An empty backend
// returns (nil, nil): publishing is optional.
func NewFromConfig(ctx context.Context, cfg config.MQConfig) (Publisher, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubPublisher(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

var errSubjectRequired = errors.New("event subject is required")
