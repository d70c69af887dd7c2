package http_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	adapter_http "github.com/aradsms/smsbridge/internal/inbound_processor_service/adapters/http"
)

func TestWebhookRegistry(t *testing.T) {
	r := adapter_http.NewWebhookRegistry()
	r.Register("hook", "inst-1")
	r.Register(" ", "ignored")

	id, ok := r.Lookup("hook")
	assert.True(t, ok)
	assert.Equal(t, "inst-1", id)
	assert.Equal(t, 1, r.Len())

	r.Register("hook", "inst-2")
	id, _ = r.Lookup("hook")
	assert.Equal(t, "inst-2", id)

	r.Unregister("hook")
	_, ok = r.Lookup("hook")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestTwilioSignature_KnownVector(t *testing.T) {
	// Example from Twilio's webhook security documentation.
	params := map[string]string{
		"CallSid": "CA1234567890ABCDE",
		"Caller":  "+12349013030",
		"Digits":  "1234",
		"From":    "+12349013030",
		"To":      "+18005551212",
	}
	got := adapter_http.TwilioSignature("12345", "https://mycompany.com/myapp.php?foo=1&bar=2", params)
	assert.Equal(t, "0/KCTR6DLpKmkAf8muzZqo1nDgQ=", got)
}
