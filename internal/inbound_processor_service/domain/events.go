package domain

import "time"

// EventType names a domain event published for automations.
type EventType string

const (
	EventMessageReceived EventType = "sms_message_received"
	EventKeywordMatched  EventType = "sms_keyword_matched"
	// EventDataUpdated only carries the instance id; readers re-query state.
	EventDataUpdated EventType = "sms_data_updated"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type       EventType       `json:"event_type"`
	InstanceID string          `json:"instance_id"`
	Message    *InboundMessage `json:"message,omitempty"`
	FiredAt    time.Time       `json:"fired_at"`
}
