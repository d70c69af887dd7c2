package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// Outcome reports what the pipeline did with an accepted delivery.
type Outcome string

const (
	OutcomeStored   Outcome = "stored"
	OutcomeFiltered Outcome = "filtered"
)

// Sources label where a delivery came from in logs and metrics.
const (
	SourceWebhook  = "webhook"
	SourcePoll     = "poll"
	SourceSimulate = "simulate"
)

// Result is returned for every delivery that passed extraction.
type Result struct {
	Outcome Outcome
	Message domain.InboundMessage
}

// SimulatedMessage is a synthetic delivery injected for testing automations.
type SimulatedMessage struct {
	Body      string `json:"body" validate:"required"`
	Sender    string `json:"sender" validate:"required"`
	Recipient string `json:"to"`
}

// Pipeline runs extraction, sender filtering, sanitization, keyword matching,
// storage and event publishing for one delivery.
type Pipeline struct {
	parser *PayloadParser
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewPipeline(events EventPublisher, logger *slog.Logger, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		parser: NewPayloadParser(logger),
		events: events,
		logger: logger.With("component", "pipeline"),
		now:    now,
	}
}

// FieldsVerifier checks a parsed delivery before extraction, such as a
// provider signature over the form fields.
type FieldsVerifier func(fields map[string]string) error

// HandleDelivery parses a raw body, runs verify (when set) on the parsed fields
// and processes the result. Parse, verification and extraction errors are
// returned unchanged.
func (p *Pipeline) HandleDelivery(ctx context.Context, rt *Runtime, body []byte, contentType string, verify FieldsVerifier) (Result, error) {
	fields, err := p.parser.Parse(body, contentType)
	if err != nil {
		return Result{}, err
	}
	if verify != nil {
		if err := verify(fields); err != nil {
			return Result{}, err
		}
	}
	return p.ProcessFields(ctx, rt, fields, SourceWebhook)
}

// ProcessFields extracts a message from fields using the instance's provider
// schema and runs it through the rest of the pipeline. The only error returned
// is an extraction failure; storage and publish failures are logged.
func (p *Pipeline) ProcessFields(ctx context.Context, rt *Runtime, fields map[string]string, source string) (Result, error) {
	provider := string(rt.Extractor.Provider())
	inboundSMSReceivedCounter.WithLabelValues(provider, source).Inc()

	msg, err := rt.Extractor.Extract(fields)
	if err != nil {
		inboundSMSProcessedCounter.WithLabelValues(provider, "error_extraction").Inc()
		p.logger.WarnContext(ctx, "Delivery rejected", "instance_id", rt.ID(), "source", source, "error", err)
		return Result{}, err
	}
	return p.accept(ctx, rt, msg, source), nil
}

// Inject runs a synthetic message through filtering, sanitization, matching,
// storage and events, tagged with the test provider.
func (p *Pipeline) Inject(ctx context.Context, rt *Runtime, sim SimulatedMessage) (Result, error) {
	inboundSMSReceivedCounter.WithLabelValues(string(domain.ProviderTest), SourceSimulate).Inc()

	msg, err := buildMessage(p.logger, domain.ProviderTest, sim.Body, sim.Sender)
	if err != nil {
		inboundSMSProcessedCounter.WithLabelValues(string(domain.ProviderTest), "error_extraction").Inc()
		return Result{}, err
	}
	msg.Recipient = sim.Recipient
	msg.MessageID = "sim-" + uuid.NewString()
	msg.Timestamp = p.now().UTC()
	return p.accept(ctx, rt, msg, SourceSimulate), nil
}

func (p *Pipeline) accept(ctx context.Context, rt *Runtime, msg domain.InboundMessage, source string) Result {
	start := time.Now()
	provider := string(msg.Provider)
	defer func() {
		inboundSMSProcessingDurationHist.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	logger := p.logger.With("instance_id", rt.ID(), "source", source, "message_id", msg.MessageID)

	if !ShouldProcess(rt.Config, msg.Sender) {
		inboundSMSProcessedCounter.WithLabelValues(provider, "filtered").Inc()
		logger.InfoContext(ctx, "Message filtered by sender rules", "sender", msg.Sender)
		return Result{Outcome: OutcomeFiltered, Message: msg}
	}

	msg.Body = Sanitize(msg.RawBody)
	msg = msg.WithMatches(rt.Matcher.Match(msg.Body))
	if len(msg.MatchedKeywords) > 0 {
		keywordMatchesCounter.WithLabelValues(rt.ID()).Add(float64(len(msg.MatchedKeywords)))
	}

	status := "stored"
	if err := rt.Store.Store(msg); err != nil {
		status = "error_storage"
		if !errors.Is(err, domain.ErrStorage) {
			err = errors.Join(domain.ErrStorage, err)
		}
		logger.ErrorContext(ctx, "Failed to store message", "error", err)
	}
	inboundSMSProcessedCounter.WithLabelValues(provider, status).Inc()

	firedAt := p.now().UTC()
	p.publish(ctx, logger, domain.Event{Type: domain.EventMessageReceived, InstanceID: rt.ID(), Message: eventMessage(msg), FiredAt: firedAt})
	if len(msg.MatchedKeywords) > 0 {
		p.publish(ctx, logger, domain.Event{Type: domain.EventKeywordMatched, InstanceID: rt.ID(), Message: eventMessage(msg), FiredAt: firedAt})
	}
	p.publish(ctx, logger, domain.Event{Type: domain.EventDataUpdated, InstanceID: rt.ID(), FiredAt: firedAt})

	logger.InfoContext(ctx, "Inbound message processed",
		"sender", msg.Sender,
		"provider", provider,
		"matched_keywords", msg.MatchedKeywords,
		"body_len", len(msg.Body),
	)
	return Result{Outcome: OutcomeStored, Message: msg}
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, event domain.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishEvent(ctx, event); err != nil {
		eventPublishErrorsCounter.WithLabelValues(string(event.Type)).Inc()
		logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.Type, "error", err)
	}
}

func eventMessage(msg domain.InboundMessage) *domain.InboundMessage {
	c := msg.Clone()
	return &c
}
