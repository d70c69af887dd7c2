package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// Extractor builds an InboundMessage from the flat field map of one provider's payload.
type Extractor interface {
	Provider() domain.ProviderTag
	Extract(fields map[string]string) (domain.InboundMessage, error)
}

// NewExtractor returns the extractor for a provider tag.
func NewExtractor(provider domain.ProviderTag, logger *slog.Logger, now func() time.Time) (Extractor, error) {
	if now == nil {
		now = time.Now
	}
	logger = logger.With("component", "extractor", "provider", string(provider))
	switch provider {
	case domain.ProviderTwilio:
		return &TwilioExtractor{logger: logger, now: now}, nil
	case domain.ProviderMobileMessage:
		return &MobileMessageExtractor{logger: logger, now: now}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", domain.ErrInvalidConfig, provider)
	}
}

// TwilioExtractor reads Body, From, To, MessageSid and DateSent.
type TwilioExtractor struct {
	logger *slog.Logger
	now    func() time.Time
}

func (e *TwilioExtractor) Provider() domain.ProviderTag { return domain.ProviderTwilio }

func (e *TwilioExtractor) Extract(fields map[string]string) (domain.InboundMessage, error) {
	msg, err := buildMessage(e.logger, domain.ProviderTwilio, fields["Body"], fields["From"])
	if err != nil {
		return msg, err
	}
	msg.Recipient = strings.TrimSpace(fields["To"])
	msg.MessageID = strings.TrimSpace(fields["MessageSid"])
	if ts, ok := ParseProviderTimestamp(fields["DateSent"]); ok {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = e.now().UTC()
	}
	return msg, nil
}

// MobileMessageExtractor reads message, sender, to, message_id and received_at.
type MobileMessageExtractor struct {
	logger *slog.Logger
	now    func() time.Time
}

func (e *MobileMessageExtractor) Provider() domain.ProviderTag { return domain.ProviderMobileMessage }

func (e *MobileMessageExtractor) Extract(fields map[string]string) (domain.InboundMessage, error) {
	msg, err := buildMessage(e.logger, domain.ProviderMobileMessage, fields["message"], fields["sender"])
	if err != nil {
		return msg, err
	}
	msg.Recipient = strings.TrimSpace(fields["to"])
	msg.MessageID = strings.TrimSpace(fields["message_id"])
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(fields["received_at"])); err == nil {
		msg.Timestamp = ts.UTC()
	} else {
		msg.Timestamp = e.now().UTC()
	}
	return msg, nil
}

// buildMessage enforces the fields every provider must supply.
func buildMessage(logger *slog.Logger, provider domain.ProviderTag, body, sender string) (domain.InboundMessage, error) {
	sender = strings.TrimSpace(sender)
	switch {
	case strings.TrimSpace(body) == "":
		return domain.InboundMessage{}, fmt.Errorf("%w: body", domain.ErrExtraction)
	case sender == "":
		return domain.InboundMessage{}, fmt.Errorf("%w: sender", domain.ErrExtraction)
	}

	if !domain.IsValidPhoneNumber(sender) {
		logger.Warn("Sender does not look like a phone number", "sender", sender)
	}

	body = truncateRunes(body, domain.MaxBodyLength)
	return domain.InboundMessage{
		Body:     body,
		RawBody:  body,
		Sender:   sender,
		Provider: provider,
	}, nil
}

var providerTimestampLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	// RFC 1123 with an unpadded day of month.
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseProviderTimestamp accepts the timestamp shapes Twilio uses in webhooks
// and the REST API. Values without a zone are read as UTC.
func ParseProviderTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range providerTimestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
