package clients

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/metrics"
)

// NewBreaker trips after more than three consecutive failures and probes again
// after timeout.
func NewBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

// guarded runs call through cb and records the outcome.
func guarded(cb *gobreaker.CircuitBreaker, service string, call func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, call()
	})
	switch {
	case err == nil:
		metrics.RecordOutboundCall(service, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordOutboundCall(service, "rejected")
	default:
		metrics.RecordOutboundCall(service, "failed")
	}
	return err
}
