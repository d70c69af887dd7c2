package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	adapter_http "github.com/aradsms/smsbridge/internal/inbound_processor_service/adapters/http"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/app"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
)

type MockOutboundSender struct {
	mock.Mock
}

func (m *MockOutboundSender) Send(ctx context.Context, instanceID string, req app.SendRequest) (*provider.SendResult, error) {
	args := m.Called(ctx, instanceID, req)
	res, _ := args.Get(0).(*provider.SendResult)
	return res, args.Error(1)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestAPI_ListInstances(t *testing.T) {
	g := newGateway(t, nil, "", 0)
	g.setup(t, mobileInstance(false))
	g.setup(t, twilioInstance(false))

	rr := g.api(httptest.NewRequest(http.MethodGet, "/api/instances", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var list []app.InstanceStatus
	decode(t, rr, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Gate", list[0].Name)
	assert.Equal(t, "Reception", list[1].Name)
	assert.True(t, list[1].Ready)
	assert.Equal(t, "reception-hook", list[1].WebhookID)
}

func TestAPI_StateAfterSimulate(t *testing.T) {
	g := newGateway(t, nil, "https://gw.example.com", 0)
	g.setup(t, mobileInstance(false))

	rr := g.api(httptest.NewRequest(http.MethodPost, "/api/instances/mm-1/simulate",
		strings.NewReader(`{"body":"please *open* up","sender":"0412345678","to":"0400000000"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var sim adapter_http.SimulateResponse
	decode(t, rr, &sim)
	assert.Equal(t, app.OutcomeStored, sim.Outcome)
	assert.Equal(t, domain.ProviderTest, sim.Message.Provider)
	assert.Equal(t, "please open up", sim.Message.Body)
	assert.Equal(t, []string{"open"}, sim.Message.MatchedKeywords)

	rr = g.api(httptest.NewRequest(http.MethodGet, "/api/instances/mm-1/state", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var st app.InstanceState
	decode(t, rr, &st)
	assert.Equal(t, uint64(1), st.MessageCount)
	assert.True(t, st.NewMessage)
	require.NotNil(t, st.LastMessage)
	assert.Equal(t, "please open up", st.LastMessage.State)
	assert.Equal(t, "0400000000", st.LastMessage.ToNumber)
	require.NotNil(t, st.LastSender)
	assert.Equal(t, "0412345678", st.LastSender.State)
	assert.Equal(t, "https://gw.example.com/api/webhook/reception-hook", st.WebhookURL)
}

func TestAPI_StateUnknownInstance(t *testing.T) {
	g := newGateway(t, nil, "", 0)
	rr := g.api(httptest.NewRequest(http.MethodGet, "/api/instances/nope/state", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "instance not found", body["error"])
}

func TestAPI_SimulateRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		body     string
		want     int
	}{
		{name: "unknown instance", instance: "nope", body: `{"body":"x","sender":"y"}`, want: http.StatusNotFound},
		{name: "malformed json", instance: "mm-1", body: `{"body":`, want: http.StatusBadRequest},
		{name: "unknown field", instance: "mm-1", body: `{"body":"x","sender":"y","extra":1}`, want: http.StatusBadRequest},
		{name: "missing sender", instance: "mm-1", body: `{"body":"x"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, nil, "", 0)
			rt := g.setup(t, mobileInstance(false))
			rr := g.api(httptest.NewRequest(http.MethodPost, "/api/instances/"+tt.instance+"/simulate", strings.NewReader(tt.body)))
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, uint64(0), rt.Store.Snapshot().Count)
		})
	}
}

func TestAPI_Send(t *testing.T) {
	sender := new(MockOutboundSender)
	g := newGateway(t, sender, "", 0)

	want := app.SendRequest{To: "0412345678", Message: "Gate opened", Sender: "Reception"}
	sender.On("Send", mock.Anything, "mm-1", want).
		Return(&provider.SendResult{MessageID: "abc", To: "0412345678", Status: "success", Cost: 0.05}, nil).Once()

	rr := g.api(httptest.NewRequest(http.MethodPost, "/api/instances/mm-1/send",
		strings.NewReader(`{"to":"0412345678","message":"Gate opened","sender":"Reception"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var res provider.SendResult
	decode(t, rr, &res)
	assert.Equal(t, "abc", res.MessageID)
	sender.AssertExpectations(t)
}

func TestAPI_SendErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown instance", err: domain.ErrInstanceNotFound, want: http.StatusNotFound},
		{name: "invalid request", err: domain.ErrInvalidSendRequest, want: http.StatusBadRequest},
		{name: "provider failure", err: &domain.ProviderAPIError{Provider: "mobilemessage", Operation: "send", StatusCode: 500}, want: http.StatusBadGateway},
		{name: "other failure", err: context.DeadlineExceeded, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := new(MockOutboundSender)
			g := newGateway(t, sender, "", 0)
			sender.On("Send", mock.Anything, "mm-1", mock.Anything).Return(nil, tt.err).Once()

			rr := g.api(httptest.NewRequest(http.MethodPost, "/api/instances/mm-1/send",
				strings.NewReader(`{"to":"0412345678","message":"hi"}`)))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestRouter_Health(t *testing.T) {
	g := newGateway(t, nil, "", 0)
	rr := g.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	g := newGateway(t, nil, "", 0)
	g.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := g.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "smsbridge_http_requests_total")
}
