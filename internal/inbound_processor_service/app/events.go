package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/platform/messagebroker"
)

// EventPublisher delivers domain events to subscribers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domain.Event) error
}

// BrokerEventPublisher encodes events as JSON and publishes them on
// "<prefix>.<instance id>.<event type>".
type BrokerEventPublisher struct {
	broker messagebroker.Publisher
	prefix string
}

func NewBrokerEventPublisher(broker messagebroker.Publisher, subjectPrefix string) *BrokerEventPublisher {
	return &BrokerEventPublisher{broker: broker, prefix: strings.TrimSuffix(subjectPrefix, ".")}
}

func (p *BrokerEventPublisher) PublishEvent(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	return p.broker.Publish(ctx, EventSubject(p.prefix, event.InstanceID, event.Type), data)
}

// EventSubject builds the subject an event is published on.
func EventSubject(prefix, instanceID string, eventType domain.EventType) string {
	return fmt.Sprintf("%s.%s.%s", prefix, instanceID, eventType)
}
