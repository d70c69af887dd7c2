package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
)

// MaxOutboundLength is the longest message the outbound API accepts.
const MaxOutboundLength = 765

// SendRequest is an outbound SMS request.
type SendRequest struct {
	To        string `json:"to" validate:"required,smsphone"`
	Message   string `json:"message" validate:"required,max=765"`
	Sender    string `json:"sender"`
	CustomRef string `json:"custom_ref" validate:"omitempty,max=100"`
}

// SMSClient sends one message through a provider.
type SMSClient interface {
	Send(ctx context.Context, msg provider.OutboundMessage) (*provider.SendResult, error)
}

// SMSClientFactory builds a client for an instance's outbound credentials.
type SMSClientFactory func(cfg domain.InstanceConfig) SMSClient

// InstanceConfigLookup resolves an instance id to its configuration.
type InstanceConfigLookup interface {
	InstanceConfig(id string) (domain.InstanceConfig, bool)
}

// StaticInstances resolves instances from a fixed list by id or name.
type StaticInstances []domain.InstanceConfig

func (s StaticInstances) InstanceConfig(id string) (domain.InstanceConfig, bool) {
	for _, cfg := range s {
		if cfg.ID != "" && cfg.ID == id {
			return cfg, true
		}
	}
	for _, cfg := range s {
		if cfg.Name == id {
			return cfg, true
		}
	}
	return domain.InstanceConfig{}, false
}

// Sender validates outbound requests and hands them to the instance's SMS client.
type Sender struct {
	instances InstanceConfigLookup
	clients   SMSClientFactory
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewSender(instances InstanceConfigLookup, clients SMSClientFactory, logger *slog.Logger) *Sender {
	return &Sender{
		instances: instances,
		clients:   clients,
		validate:  NewValidator(),
		logger:    logger.With("component", "sender"),
	}
}

// Send delivers req through the instance identified by instanceID. The sender
// id defaults to the instance's default sender.
func (s *Sender) Send(ctx context.Context, instanceID string, req SendRequest) (*provider.SendResult, error) {
	cfg, ok := s.instances.InstanceConfig(instanceID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInstanceNotFound, instanceID)
	}

	req.To = strings.TrimSpace(req.To)
	req.Sender = strings.TrimSpace(req.Sender)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSendRequest, err)
	}
	if req.Sender == "" {
		req.Sender = cfg.DefaultSender
	}
	if req.Sender == "" {
		return nil, fmt.Errorf("%w: no sender given and instance has no default sender", domain.ErrInvalidSendRequest)
	}
	if cfg.APIUsername == "" || cfg.APIPassword == "" {
		return nil, fmt.Errorf("%w: instance %s has no outbound credentials", domain.ErrInvalidSendRequest, cfg.Name)
	}

	client := s.clients(cfg)
	res, err := client.Send(ctx, provider.OutboundMessage{
		To:        domain.NormalizePhoneNumber(req.To),
		Message:   req.Message,
		Sender:    req.Sender,
		CustomRef: req.CustomRef,
	})
	if err != nil {
		outboundSMSCounter.WithLabelValues(string(domain.ProviderMobileMessage), "error").Inc()
		s.logger.ErrorContext(ctx, "Outbound SMS failed", "instance_id", cfg.ID, "to", req.To, "error", err)
		return nil, err
	}
	outboundSMSCounter.WithLabelValues(string(domain.ProviderMobileMessage), "success").Inc()
	s.logger.InfoContext(ctx, "Outbound SMS sent", "instance_id", cfg.ID, "to", req.To, "message_id", res.MessageID)
	return res, nil
}
