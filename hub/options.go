package hub

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/hubshim/client"
)

// Option is a functional option for configuring a [Hub] via [New].
type Option func(*options) error

type options struct {
	clientOpts []client.Option
	logger     *slog.Logger
	tracer     trace.Tracer
	registerer prometheus.Registerer
	progress   bool
}

// WithClientOptions forwards options to every HTTP client the hub builds,
// e.g. client.WithThrottle or client.WithTransport.
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) error {
		o.clientOpts = append(o.clientOpts, opts...)
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the hub and its clients.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		o.tracer = tracer
		return nil
	}
}

// WithProgress enables periodic progress logging for file transfers.
func WithProgress() Option {
	return func(o *options) error {
		o.progress = true
		return nil
	}
}

// WithMetrics registers the hub's download metrics with reg. Hubs sharing
// a registry share the same collectors.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) error {
		if reg == nil {
			return errors.New("registerer must not be nil")
		}
		o.registerer = reg
		return nil
	}
}
