package domain

import (
	"time"
)

// ProviderTag identifies which payload schema produced a message.
type ProviderTag string

const (
	// ProviderTwilio is the form-encoded telephony schema (Body/From/To/MessageSid/DateSent).
	ProviderTwilio ProviderTag = "twilio"
	// ProviderMobileMessage is the JSON telephony schema (message/sender/to/message_id/received_at).
	ProviderMobileMessage ProviderTag = "mobilemessage"
	// ProviderTest marks records injected through the simulate endpoint.
	ProviderTest ProviderTag = "test"
)

// MaxBodyLength is the number of characters kept from an inbound body.
const MaxBodyLength = 1000

// InboundMessage is the provider-agnostic record produced by extraction.
// Body and Sender are never empty for a constructed record.
type InboundMessage struct {
	Body      string      `json:"body"`
	RawBody   string      `json:"raw_body,omitempty"` // Pre-sanitization body
	Sender    string      `json:"sender"`
	Recipient string      `json:"to_number"`
	MessageID string      `json:"message_sid"` // Provider message id, used for dedup when polling
	Timestamp time.Time   `json:"timestamp"`   // Always UTC
	Provider  ProviderTag `json:"provider"`

	// MatchedKeywords keeps the configured keyword order; duplicates are not collapsed.
	MatchedKeywords []string `json:"matched_keywords"`
}

// WithMatches returns a copy of the message annotated with the given keyword matches.
func (m InboundMessage) WithMatches(matches []string) InboundMessage {
	out := m
	out.MatchedKeywords = append([]string{}, matches...)
	return out
}

// Clone returns a deep copy so stored records can be handed out without sharing slices.
func (m InboundMessage) Clone() InboundMessage {
	out := m
	if m.MatchedKeywords != nil {
		out.MatchedKeywords = append([]string{}, m.MatchedKeywords...)
	}
	return out
}

// Preview returns at most n characters of the body followed by "..." when truncated.
func (m InboundMessage) Preview(n int) string {
	r := []rune(m.Body)
	if len(r) <= n {
		return m.Body
	}
	return string(r[:n]) + "..."
}

// StoredMessage is a history entry: the record plus the time it entered the store.
// A zero StoredAt means the storage time is unknown.
type StoredMessage struct {
	InboundMessage
	StoredAt time.Time `json:"stored_at"`
}
