package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/app"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
)

// InstanceDirectory lists and resolves instances.
type InstanceDirectory interface {
	RuntimeLookup
	List() []app.InstanceStatus
}

// MessageInjector runs synthetic messages through the pipeline.
type MessageInjector interface {
	Inject(ctx context.Context, rt *app.Runtime, sim app.SimulatedMessage) (app.Result, error)
}

// OutboundSender sends SMS through an instance.
type OutboundSender interface {
	Send(ctx context.Context, instanceID string, req app.SendRequest) (*provider.SendResult, error)
}

// SimulateResponse reports what the pipeline did with a simulated message.
type SimulateResponse struct {
	Outcome app.Outcome           `json:"outcome"`
	Message domain.InboundMessage `json:"message"`
}

// APIHandler serves instance state, simulation and outbound send endpoints.
type APIHandler struct {
	instances     InstanceDirectory
	injector      MessageInjector
	sender        OutboundSender
	validate      *validator.Validate
	publicBaseURL string
	now           func() time.Time
	logger        *slog.Logger
}

func NewAPIHandler(instances InstanceDirectory, injector MessageInjector, sender OutboundSender, publicBaseURL string, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		instances:     instances,
		injector:      injector,
		sender:        sender,
		validate:      app.NewValidator(),
		publicBaseURL: publicBaseURL,
		now:           time.Now,
		logger:        logger.With("component", "api_handler"),
	}
}

// RegisterRoutes mounts the handlers on r, which NewRouter roots at
// /api/instances behind APIAuth.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListInstances)
	r.Get("/{instanceID}/state", h.GetState)
	r.Post("/{instanceID}/simulate", h.Simulate)
	r.Post("/{instanceID}/send", h.Send)
}

func (h *APIHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.instances.List())
}

func (h *APIHandler) GetState(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.instances.Get(chi.URLParam(r, "instanceID"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "instance not found")
		return
	}
	respondWithJSON(w, http.StatusOK, app.BuildInstanceState(rt, h.baseURL(r), h.now()))
}

func (h *APIHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	rt, ok := h.instances.Get(chi.URLParam(r, "instanceID"))
	if !ok {
		respondWithError(w, http.StatusNotFound, "instance not found")
		return
	}

	var req app.SimulatedMessage
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.injector.Inject(ctx, rt, req)
	if err != nil {
		if errors.Is(err, domain.ErrExtraction) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.ErrorContext(ctx, "Simulated delivery failed", "instance_id", rt.ID(), "error", err)
		respondWithError(w, http.StatusInternalServerError, "simulation failed")
		return
	}
	logger.InfoContext(ctx, "Simulated delivery", "instance_id", rt.ID(), "operator", OperatorFromContext(ctx), "outcome", string(result.Outcome))
	respondWithJSON(w, http.StatusOK, SimulateResponse{Outcome: result.Outcome, Message: result.Message})
}

func (h *APIHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := chi.URLParam(r, "instanceID")

	var req app.SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.sender.Send(ctx, instanceID, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInstanceNotFound):
			respondWithError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidSendRequest):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProviderAPI):
			respondWithError(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.ErrorContext(ctx, "Outbound send failed", "instance_id", instanceID, "error", err)
			respondWithError(w, http.StatusInternalServerError, "send failed")
		}
		return
	}
	h.logger.InfoContext(ctx, "Outbound SMS sent", "instance_id", instanceID, "operator", OperatorFromContext(ctx))
	respondWithJSON(w, http.StatusOK, res)
}

func (h *APIHandler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
