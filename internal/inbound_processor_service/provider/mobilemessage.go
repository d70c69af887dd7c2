package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const mobileMessageProviderName = "mobilemessage"

// OutboundMessage is one message in a Mobile Message send request.
type OutboundMessage struct {
	To        string `json:"to"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	CustomRef string `json:"custom_ref,omitempty"`
}

type mobileMessageSendRequest struct {
	Messages []OutboundMessage `json:"messages"`
}

// SendResult is the per-message result returned by the send API.
type SendResult struct {
	MessageID string  `json:"message_id"`
	To        string  `json:"to"`
	Status    string  `json:"status"`
	Cost      float64 `json:"cost"`
}

type mobileMessageSendResponse struct {
	Status  string       `json:"status"`
	Results []SendResult `json:"results"`
	Error   string       `json:"error,omitempty"`
}

// MobileMessageClient sends SMS through the Mobile Message HTTP API.
type MobileMessageClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewMobileMessageClient(logger *slog.Logger, baseURL, username, password string, timeout time.Duration, httpClient *http.Client) *MobileMessageClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger = logger.With("provider", mobileMessageProviderName)
	return &MobileMessageClient{
		logger:     logger,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		timeout:    timeout,
		breaker:    newBreaker("mobilemessage:"+username, logger),
	}
}

// Send posts a single message. It succeeds only when the API answers 200 with
// status "complete" and the first result reports "success".
func (c *MobileMessageClient) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, msg)
	})
	if err != nil {
		if IsCircuitOpen(err) {
			return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", Err: err}
		}
		return nil, err
	}
	return res.(*SendResult), nil
}

func (c *MobileMessageClient) send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBytes, err := json.Marshal(mobileMessageSendRequest{Messages: []OutboundMessage{msg}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Mobile Message request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create Mobile Message request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	c.logger.DebugContext(ctx, "Sending SMS", "to", msg.To, "sender", msg.Sender, "length", len(msg.Message))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Mobile Message request failed", "error", err)
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.DebugContext(ctx, "Received Mobile Message response", "status_code", resp.StatusCode, "body", string(body))

	if resp.StatusCode != http.StatusOK {
		apiErr := &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode}
		var parsed mobileMessageSendResponse
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			apiErr.Message = parsed.Error
		} else if len(body) > 0 && len(body) < 200 {
			apiErr.Message = string(body)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
			apiErr.Err = ErrPermanent
		}
		c.logger.WarnContext(ctx, "Mobile Message send failed", "status_code", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	var parsed mobileMessageSendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	if parsed.Status != "complete" {
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("status not complete: %q", parsed.Status), Err: ErrPermanent}
	}
	if len(parsed.Results) == 0 {
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode, Message: "no results", Err: ErrPermanent}
	}
	result := parsed.Results[0]
	if result.Status != "success" {
		return nil, &domain.ProviderAPIError{Provider: mobileMessageProviderName, Operation: "send", StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("message status %q", result.Status), Err: ErrPermanent}
	}

	c.logger.InfoContext(ctx, "SMS sent", "message_id", result.MessageID, "cost", result.Cost)
	return &result, nil
}
