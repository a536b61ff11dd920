package subscription

import (
	"log/slog"

	"github.com/dmitrymomot/plankit/pkg/clock"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithGateway attaches a payment gateway. Without one, lifecycle calls
// carrying payment details create records that simply stay unpaid.
func WithGateway(gw Gateway) ServiceOption {
	return func(s *service) {
		if gw != nil {
			s.gateway = gw
		}
	}
}

// WithSink sets the event sink receiving lifecycle events. Defaults to a
// discarding sink.
func WithSink(sink Sink) ServiceOption {
	return func(s *service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock injects the clock used for all temporal predicates. Defaults to
// the system clock; tests use clock.NewFixed.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}
