package domain

import (
	"errors"
	"fmt"
)

var (
	ErrParse              = errors.New("payload could not be parsed")
	ErrExtraction         = errors.New("required message fields missing")
	ErrSignature          = errors.New("webhook signature verification failed")
	ErrProviderAPI        = errors.New("provider api call failed")
	ErrStorage            = errors.New("message store update failed")
	ErrInstanceNotFound   = errors.New("instance not found")
	ErrNotReady           = errors.New("instance not ready")
	ErrInvalidSendRequest = errors.New("invalid send request")
	ErrInvalidConfig      = errors.New("invalid instance configuration")
)

// ParseError describes why a request body could not be decoded into key/value pairs.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse payload: %s: %v", e.Reason, e.Err)
	}
	return "parse payload: " + e.Reason
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderAPIError is returned when a call to a provider API fails or returns an
// unexpected response.
type ProviderAPIError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderAPIError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Provider, e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderAPIError) Is(target error) bool { return target == ErrProviderAPI }

func (e *ProviderAPIError) Unwrap() error { return e.Err }
