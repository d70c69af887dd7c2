package app

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTwilioExtractor_Extract(t *testing.T) {
	clock := newFakeClock(testNow)
	ex, err := NewExtractor(domain.ProviderTwilio, testLogger(), clock.Now)
	require.NoError(t, err)

	msg, err := ex.Extract(map[string]string{
		"Body":       "Open the gate",
		"From":       "+61400000001",
		"To":         "+61400000002",
		"MessageSid": "SM123",
		"DateSent":   "Wed, 01 May 2024 10:00:00 +0000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Open the gate", msg.Body)
	assert.Equal(t, "Open the gate", msg.RawBody)
	assert.Equal(t, "+61400000001", msg.Sender)
	assert.Equal(t, "+61400000002", msg.Recipient)
	assert.Equal(t, "SM123", msg.MessageID)
	assert.Equal(t, domain.ProviderTwilio, msg.Provider)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msg.Timestamp)
}

func TestTwilioExtractor_TimestampFormats(t *testing.T) {
	clock := newFakeClock(testNow)
	ex, err := NewExtractor(domain.ProviderTwilio, testLogger(), clock.Now)
	require.NoError(t, err)

	tests := []struct {
		value string
		want  time.Time
	}{
		{value: "Wed, 01 May 2024 20:00:00 +1000", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{value: "Sun, 2 Jun 2024 10:00:00 +0000", want: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)},
		{value: "Sun, 2 Jun 2024 20:30:00 +1030", want: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)},
		{value: "Sun, 2 Jun 2024 10:00:00 GMT", want: time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)},
		{value: "2024-05-01T10:00:00.123456Z", want: time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)},
		{value: "2024-05-01T10:00:00Z", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{value: "2024-05-01 10:00:00", want: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{value: "", want: testNow},
		{value: "yesterday", want: testNow},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			msg, err := ex.Extract(map[string]string{"Body": "x", "From": "0412345678", "DateSent": tt.value})
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(msg.Timestamp), "got %s", msg.Timestamp)
			assert.Equal(t, time.UTC, msg.Timestamp.Location())
		})
	}
}

func TestMobileMessageExtractor_Extract(t *testing.T) {
	clock := newFakeClock(testNow)
	ex, err := NewExtractor(domain.ProviderMobileMessage, testLogger(), clock.Now)
	require.NoError(t, err)

	msg, err := ex.Extract(map[string]string{
		"message":     "Alarm triggered",
		"sender":      "0412345678",
		"to":          "0498765432",
		"message_id":  "mm-1",
		"received_at": "2024-05-01T10:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alarm triggered", msg.Body)
	assert.Equal(t, "0412345678", msg.Sender)
	assert.Equal(t, "0498765432", msg.Recipient)
	assert.Equal(t, "mm-1", msg.MessageID)
	assert.Equal(t, domain.ProviderMobileMessage, msg.Provider)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), msg.Timestamp)

	msg, err = ex.Extract(map[string]string{"message": "x", "sender": "0412345678", "received_at": "01/05/2024"})
	require.NoError(t, err)
	assert.Equal(t, testNow, msg.Timestamp)
}

func TestExtractors_MissingRequiredFields(t *testing.T) {
	clock := newFakeClock(testNow)
	twilio, err := NewExtractor(domain.ProviderTwilio, testLogger(), clock.Now)
	require.NoError(t, err)
	mm, err := NewExtractor(domain.ProviderMobileMessage, testLogger(), clock.Now)
	require.NoError(t, err)

	tests := []struct {
		name   string
		ex     Extractor
		fields map[string]string
	}{
		{name: "twilio no body", ex: twilio, fields: map[string]string{"From": "0412345678"}},
		{name: "twilio blank body", ex: twilio, fields: map[string]string{"Body": "   ", "From": "0412345678"}},
		{name: "twilio no sender", ex: twilio, fields: map[string]string{"Body": "hi"}},
		{name: "mobilemessage no body", ex: mm, fields: map[string]string{"sender": "0412345678"}},
		{name: "mobilemessage no sender", ex: mm, fields: map[string]string{"message": "hi", "sender": " "}},
		{name: "wrong schema", ex: mm, fields: map[string]string{"Body": "hi", "From": "0412345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ex.Extract(tt.fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrExtraction))
		})
	}
}

func TestExtractor_TruncatesBody(t *testing.T) {
	clock := newFakeClock(testNow)
	ex, err := NewExtractor(domain.ProviderTwilio, testLogger(), clock.Now)
	require.NoError(t, err)

	msg, err := ex.Extract(map[string]string{"Body": strings.Repeat("é", 1500), "From": "0412345678"})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxBodyLength, utf8.RuneCountInString(msg.Body))
	assert.True(t, utf8.ValidString(msg.Body))
}

func TestExtractor_AcceptsOddSender(t *testing.T) {
	clock := newFakeClock(testNow)
	ex, err := NewExtractor(domain.ProviderTwilio, testLogger(), clock.Now)
	require.NoError(t, err)

	msg, err := ex.Extract(map[string]string{"Body": "hi", "From": "ACME"})
	require.NoError(t, err)
	assert.Equal(t, "ACME", msg.Sender)
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	_, err := NewExtractor("carrier-pigeon", testLogger(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
}
