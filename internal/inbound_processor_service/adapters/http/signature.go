package http

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const (
	twilioSignatureHeader = "X-Twilio-Signature"
	webhookSecretHeader   = "X-Webhook-Secret"
)

// TwilioSignature computes base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
func TwilioSignature(authToken, fullURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func verifyTwilioSignature(authToken, fullURL string, params map[string]string, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing %s header", domain.ErrSignature, twilioSignatureHeader)
	}
	expected := TwilioSignature(authToken, fullURL, params)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrSignature)
	}
	return nil
}

func verifySharedSecret(expected, got string) error {
	if expected == "" {
		return fmt.Errorf("%w: no webhook secret configured", domain.ErrSignature)
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return fmt.Errorf("%w: %s mismatch", domain.ErrSignature, webhookSecretHeader)
	}
	return nil
}

// requestURL is the URL the provider called: publicBaseURL plus the request
// URI, or the origin reconstructed from the request when no base is configured.
func requestURL(r *http.Request, publicBaseURL string) string {
	if publicBaseURL != "" {
		return strings.TrimRight(publicBaseURL, "/") + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
