package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// PayloadParser turns a raw webhook body into a flat string map, accepting both
// form-encoded and JSON bodies regardless of the declared content type.
type PayloadParser struct {
	logger *slog.Logger
}

func NewPayloadParser(logger *slog.Logger) *PayloadParser {
	return &PayloadParser{logger: logger.With("component", "payload_parser")}
}

// Parse applies the fallback chain: form decoding when the content type says
// so, then text decoding plus form parsing, then JSON. A body whose trimmed text
// starts with "{" is never treated as a form.
func (p *PayloadParser) Parse(body []byte, contentType string) (map[string]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &domain.ParseError{Reason: "empty body"}
	}

	text := decodeText(body)
	looksJSON := strings.HasPrefix(strings.TrimSpace(text), "{")

	if !looksJSON {
		if isFormContentType(contentType) {
			if fields := parseForm(string(body)); len(fields) > 0 {
				return fields, nil
			}
		}
		if fields := parseForm(text); len(fields) > 0 {
			return fields, nil
		}
	}

	fields, err := parseJSONObject(text)
	if err != nil {
		p.logger.Debug("Payload is neither form nor JSON", "content_type", contentType, "body_len", len(body), "error", err)
		return nil, &domain.ParseError{Reason: "no usable key/value pairs", Err: err}
	}
	if len(fields) == 0 {
		return nil, &domain.ParseError{Reason: "no usable key/value pairs"}
	}
	return fields, nil
}

func isFormContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/x-www-form-urlencoded")
	}
	return mediaType == "application/x-www-form-urlencoded"
}

// decodeText reads body as UTF-8, falling back to ISO-8859-1 and finally to a
// lossy UTF-8 conversion.
func decodeText(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body); err == nil {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(body), "\uFFFD")
}

// parseForm returns the first value of each key. The result is nil unless at
// least one key carries a non-empty value.
func parseForm(text string) map[string]string {
	values, err := url.ParseQuery(strings.TrimSpace(text))
	if err != nil && len(values) == 0 {
		return nil
	}
	fields := make(map[string]string, len(values))
	usable := false
	for key, vals := range values {
		key = decodeText([]byte(key))
		if strings.TrimSpace(key) == "" || len(vals) == 0 {
			continue
		}
		val := decodeText([]byte(vals[0]))
		fields[key] = val
		if val != "" {
			usable = true
		}
	}
	if !usable {
		return nil
	}
	return fields
}

// parseJSONObject decodes a JSON object and flattens its values to strings.
func parseJSONObject(text string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(raw))
	for key, val := range raw {
		if key == "" {
			continue
		}
		fields[key] = flattenJSONValue(val)
	}
	return fields, nil
}

func flattenJSONValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any:
		if len(val) == 0 {
			return ""
		}
		return flattenJSONValue(val[0])
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
