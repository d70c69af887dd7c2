package provider

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrPermanent marks provider responses that retrying will not fix, such as
// rejected credentials. They do not count against the circuit breaker.
var ErrPermanent = errors.New("permanent provider error")

// newBreaker trips after five consecutive failures and probes again after 30s.
func newBreaker(name string, logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPermanent)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Provider circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// IsCircuitOpen reports whether err came from a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
