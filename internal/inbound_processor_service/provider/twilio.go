package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const (
	twilioProviderName = "twilio"
	// maxListPages bounds how far a single poll follows next_page_uri.
	maxListPages = 10
)

// TwilioMessage is one entry of the Messages list resource.
type TwilioMessage struct {
	SID         string `json:"sid"`
	Body        string `json:"body"`
	From        string `json:"from"`
	To          string `json:"to"`
	Direction   string `json:"direction"`
	Status      string `json:"status"`
	DateSent    string `json:"date_sent"`
	DateCreated string `json:"date_created"`
}

// IsInbound reports whether the message was received by the account.
func (m TwilioMessage) IsInbound() bool {
	return m.Direction == "inbound"
}

// Fields maps the message onto the same keys a Twilio webhook delivers, so the
// poller and the webhook share one extractor.
func (m TwilioMessage) Fields() map[string]string {
	sent := m.DateSent
	if sent == "" {
		sent = m.DateCreated
	}
	return map[string]string{
		"Body":       m.Body,
		"From":       m.From,
		"To":         m.To,
		"MessageSid": m.SID,
		"DateSent":   sent,
	}
}

type twilioListResponse struct {
	Messages    []TwilioMessage `json:"messages"`
	NextPageURI string          `json:"next_page_uri"`
}

type twilioErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// TwilioClient reads messages from the Twilio REST API with account basic auth.
type TwilioClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	accountSID string
	authToken  string
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

func NewTwilioClient(logger *slog.Logger, baseURL, accountSID, authToken string, timeout time.Duration, httpClient *http.Client) *TwilioClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger = logger.With("provider", twilioProviderName)
	return &TwilioClient{
		logger:     logger,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		timeout:    timeout,
		breaker:    newBreaker("twilio:"+accountSID, logger),
	}
}

// ListMessages returns messages sent on or after the calendar day of since,
// following pagination up to a fixed number of pages.
func (c *TwilioClient) ListMessages(ctx context.Context, since time.Time) ([]TwilioMessage, error) {
	query := url.Values{}
	query.Set("DateSent>", since.UTC().Format("2006-01-02"))
	query.Set("PageSize", "1000")
	next := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json?%s", url.PathEscape(c.accountSID), query.Encode())

	var all []TwilioMessage
	for page := 0; next != "" && page < maxListPages; page++ {
		var resp twilioListResponse
		if err := c.getJSON(ctx, "list_messages", c.baseURL+next, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Messages...)
		next = resp.NextPageURI
	}
	c.logger.DebugContext(ctx, "Listed Twilio messages", "count", len(all), "since", since)
	return all, nil
}

// ValidateCredentials fetches the account resource. Rejected credentials are
// returned wrapped in ErrPermanent.
func (c *TwilioClient) ValidateCredentials(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s.json", c.baseURL, url.PathEscape(c.accountSID))
	var account struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "validate_credentials", endpoint, &account); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Twilio credentials validated", "account_status", account.Status)
	return nil
}

func (c *TwilioClient) getJSON(ctx context.Context, operation, endpoint string, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.doGet(ctx, operation, endpoint, out)
	})
	if err != nil && IsCircuitOpen(err) {
		return &domain.ProviderAPIError{Provider: twilioProviderName, Operation: operation, Err: err}
	}
	return err
}

func (c *TwilioClient) doGet(ctx context.Context, operation, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create Twilio request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Twilio request failed", "operation", operation, "error", err)
		return &domain.ProviderAPIError{Provider: twilioProviderName, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &domain.ProviderAPIError{Provider: twilioProviderName, Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &domain.ProviderAPIError{Provider: twilioProviderName, Operation: operation, StatusCode: resp.StatusCode}
		var twErr twilioErrorResponse
		if json.Unmarshal(body, &twErr) == nil && twErr.Message != "" {
			apiErr.Message = twErr.Message
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			apiErr.Err = ErrPermanent
		}
		c.logger.WarnContext(ctx, "Twilio returned an error", "operation", operation, "status_code", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.ProviderAPIError{Provider: twilioProviderName, Operation: operation, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}
