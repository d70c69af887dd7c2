package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/app"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// DefaultMaxBodyBytes caps webhook request bodies.
const DefaultMaxBodyBytes = 10 * 1024

const twimlEmptyResponse = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// RuntimeLookup resolves instance ids to live runtimes.
type RuntimeLookup interface {
	Get(id string) (*app.Runtime, bool)
}

// DeliveryProcessor runs a raw delivery through the inbound pipeline.
type DeliveryProcessor interface {
	HandleDelivery(ctx context.Context, rt *app.Runtime, body []byte, contentType string, verify app.FieldsVerifier) (app.Result, error)
}

// WebhookHandler dispatches provider webhooks to the instance registered under
// the webhook id in the path.
type WebhookHandler struct {
	registry      *WebhookRegistry
	instances     RuntimeLookup
	processor     DeliveryProcessor
	maxBodyBytes  int64
	publicBaseURL string
	logger        *slog.Logger
}

func NewWebhookHandler(registry *WebhookRegistry, instances RuntimeLookup, processor DeliveryProcessor, maxBodyBytes int64, publicBaseURL string, logger *slog.Logger) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		registry:      registry,
		instances:     instances,
		processor:     processor,
		maxBodyBytes:  maxBodyBytes,
		publicBaseURL: publicBaseURL,
		logger:        logger.With("component", "webhook_handler"),
	}
}

// ServeWebhook handles POST /api/webhook/{webhookID}.
func (h *WebhookHandler) ServeWebhook(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	webhookID := chi.URLParam(r, "webhookID")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "webhook_id", webhookID)

	w := chi_middleware.NewWrapResponseWriter(rw, r.ProtoMajor)
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorContext(ctx, "Panic while handling webhook", "panic", fmt.Sprint(rec), "status_written", w.Status())
			// A status line already on the wire cannot be replaced.
			if w.Status() == 0 {
				http.Error(w, "Internal error", http.StatusInternalServerError)
			}
		}
	}()

	instanceID, ok := h.registry.Lookup(webhookID)
	if !ok {
		logger.WarnContext(ctx, "Webhook id not registered")
		http.Error(w, "Unknown webhook", http.StatusNotFound)
		return
	}
	rt, ok := h.instances.Get(instanceID)
	if !ok {
		logger.WarnContext(ctx, "Webhook registered for missing instance", "instance_id", instanceID)
		http.Error(w, "Unknown webhook", http.StatusNotFound)
		return
	}
	logger = logger.With("instance_id", instanceID, "provider", string(rt.Config.Provider))

	if r.ContentLength > h.maxBodyBytes {
		logger.WarnContext(ctx, "Webhook body too large", "content_length", r.ContentLength)
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "Webhook body too large", "limit", h.maxBodyBytes)
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	result, err := h.processor.HandleDelivery(ctx, rt, body, r.Header.Get("Content-Type"), h.verifierFor(rt, r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrParse), errors.Is(err, domain.ErrExtraction):
			logger.WarnContext(ctx, "Rejected webhook payload", "error", err, "body_len", len(body))
			http.Error(w, "Invalid payload", http.StatusBadRequest)
		case errors.Is(err, domain.ErrSignature):
			logger.WarnContext(ctx, "Webhook signature verification failed", "error", err)
			http.Error(w, "Forbidden", http.StatusForbidden)
		default:
			logger.ErrorContext(ctx, "Failed to process webhook", "error", err)
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
		return
	}

	logger.InfoContext(ctx, "Webhook processed", "outcome", string(result.Outcome), "sender", result.Message.Sender)
	writeAck(w, rt.Config.Provider)
}

func (h *WebhookHandler) verifierFor(rt *app.Runtime, r *http.Request) app.FieldsVerifier {
	if !rt.Config.VerifySignature {
		return nil
	}
	switch rt.Config.Provider {
	case domain.ProviderTwilio:
		fullURL := requestURL(r, h.publicBaseURL)
		signature := r.Header.Get(twilioSignatureHeader)
		return func(fields map[string]string) error {
			return verifyTwilioSignature(rt.Config.AuthToken, fullURL, fields, signature)
		}
	case domain.ProviderMobileMessage:
		got := r.Header.Get(webhookSecretHeader)
		return func(map[string]string) error {
			return verifySharedSecret(rt.Config.WebhookSecret, got)
		}
	default:
		return nil
	}
}

// writeAck sends the provider's expected success body.
func writeAck(w http.ResponseWriter, provider domain.ProviderTag) {
	if provider == domain.ProviderTwilio {
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, twimlEmptyResponse)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Message processed")
}

// RegisterRoutes mounts the webhook dispatcher.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/webhook/{webhookID}", h.ServeWebhook)
}
