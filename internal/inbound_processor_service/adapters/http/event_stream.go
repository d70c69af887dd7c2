package http

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aradsms/smsbridge/internal/platform/messagebroker"
)

const (
	eventStreamBuffer    = 128
	eventStreamHeartbeat = 20 * time.Second
)

// EventSubscriber is the subscribe side of the in-process event bus.
type EventSubscriber interface {
	Subscribe(pattern string, handler messagebroker.Handler) (unsubscribe func())
}

type streamedEvent struct {
	eventType string
	data      []byte
}

// EventStreamHandler relays an instance's domain events to the client as
// server-sent events.
type EventStreamHandler struct {
	instances RuntimeLookup
	bus       EventSubscriber
	prefix    string
	heartbeat time.Duration
	logger    *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewEventStreamHandler(instances RuntimeLookup, bus EventSubscriber, subjectPrefix string, logger *slog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		instances: instances,
		bus:       bus,
		prefix:    strings.TrimSuffix(subjectPrefix, "."),
		heartbeat: eventStreamHeartbeat,
		logger:    logger.With("component", "event_stream"),
		done:      make(chan struct{}),
	}
}

// Close ends every open stream. http.Server.Shutdown does not interrupt
// active requests, so it is registered with RegisterOnShutdown.
func (h *EventStreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// RegisterRoutes mounts the stream under the /api/instances group.
func (h *EventStreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{instanceID}/events", h.Stream)
}

// Stream handles GET /api/instances/{instanceID}/events. Each event is one
// "event: <type>" frame whose data line is the JSON published on the bus.
// Events that arrive while the client is behind are dropped.
func (h *EventStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := chi.URLParam(r, "instanceID")
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "instance_id", instanceID)

	if _, ok := h.instances.Get(instanceID); !ok {
		respondWithError(w, http.StatusNotFound, "instance not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	stream := make(chan streamedEvent, eventStreamBuffer)
	unsubscribe := h.bus.Subscribe(h.prefix+"."+instanceID+".*", func(subject string, data []byte) {
		ev := streamedEvent{
			eventType: subject[strings.LastIndexByte(subject, '.')+1:],
			data:      append([]byte(nil), data...),
		}
		select {
		case stream <- ev:
		default:
			logger.Warn("Event stream client is behind, dropping event", "subject", subject)
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writer := bufio.NewWriter(w)
	logger.InfoContext(ctx, "Event stream opened", "operator", OperatorFromContext(ctx))
	defer logger.InfoContext(ctx, "Event stream closed")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-heartbeat.C:
			if err := writeSSEFrame(writer, flusher, "ping", []byte(`{"event_type":"ping"}`)); err != nil {
				return
			}
		case ev := <-stream:
			if err := writeSSEFrame(writer, flusher, ev.eventType, ev.data); err != nil {
				return
			}
		}
	}
}

func writeSSEFrame(writer *bufio.Writer, flusher http.Flusher, eventType string, data []byte) error {
	if _, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return err
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
