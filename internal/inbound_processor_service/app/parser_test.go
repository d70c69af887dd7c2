package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const formContentType = "application/x-www-form-urlencoded"

func TestPayloadParser_Form(t *testing.T) {
	p := NewPayloadParser(testLogger())

	fields, err := p.Parse([]byte("Body=Hello+there&From=%2B61400000001&To=%2B61400000002&MessageSid=SM1"), formContentType)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", fields["Body"])
	assert.Equal(t, "+61400000001", fields["From"])
	assert.Equal(t, "SM1", fields["MessageSid"])
}

func TestPayloadParser_FormWithoutDeclaredType(t *testing.T) {
	p := NewPayloadParser(testLogger())

	fields, err := p.Parse([]byte("Body=hi&From=0412345678"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "hi", fields["Body"])
	assert.Equal(t, "0412345678", fields["From"])
}

func TestPayloadParser_JSONMislabeledAsForm(t *testing.T) {
	p := NewPayloadParser(testLogger())

	fields, err := p.Parse([]byte(`{"message":"hi=there","sender":"0412345678"}`), formContentType)
	require.NoError(t, err)
	assert.Equal(t, "hi=there", fields["message"])
	assert.Equal(t, "0412345678", fields["sender"])
}

func TestPayloadParser_JSONValuesFlattened(t *testing.T) {
	p := NewPayloadParser(testLogger())

	body := `{"message":"hi","count":3,"ratio":1.50,"flag":true,"nothing":null,"list":["a","b"],"empty":[],"obj":{"k":"v"}}`
	fields, err := p.Parse([]byte(body), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "hi", fields["message"])
	assert.Equal(t, "3", fields["count"])
	assert.Equal(t, "1.50", fields["ratio"])
	assert.Equal(t, "true", fields["flag"])
	assert.Equal(t, "", fields["nothing"])
	assert.Equal(t, "a", fields["list"])
	assert.Equal(t, "", fields["empty"])
	assert.Equal(t, `{"k":"v"}`, fields["obj"])
}

func TestPayloadParser_Latin1Fallback(t *testing.T) {
	p := NewPayloadParser(testLogger())

	t.Run("raw bytes", func(t *testing.T) {
		fields, err := p.Parse([]byte("Body=caf\xe9&From=0412345678"), formContentType)
		require.NoError(t, err)
		assert.Equal(t, "café", fields["Body"])
	})

	t.Run("percent encoded", func(t *testing.T) {
		fields, err := p.Parse([]byte("Body=caf%E9&From=0412345678"), formContentType)
		require.NoError(t, err)
		assert.Equal(t, "café", fields["Body"])
	})
}

func TestPayloadParser_Unusable(t *testing.T) {
	p := NewPayloadParser(testLogger())

	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ""},
		{name: "whitespace", body: "  \n "},
		{name: "plain text", body: "hello world"},
		{name: "keys without values", body: "Body=&From="},
		{name: "json array", body: `["a","b"]`},
		{name: "broken json", body: `{"message":`},
		{name: "empty json object", body: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := p.Parse([]byte(tt.body), "")
			require.Error(t, err)
			assert.Nil(t, fields)
			assert.True(t, errors.Is(err, domain.ErrParse))

			var parseErr *domain.ParseError
			assert.True(t, errors.As(err, &parseErr))
		})
	}
}
