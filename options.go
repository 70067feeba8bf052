package mediator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrorHandler is a user-provided callback for failures that have no caller
// to return to, such as messages consumed by a Bus.
type ErrorHandler func(ctx context.Context, msg Message[Request], err error)

type Option func(*Options)

type Options struct {
	Logger         *slog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	// MaxConcurrency > 0 runs matched fire-and-forget thunks concurrently.
	MaxConcurrency int
	MsgBufferSize  int
	Workers        int
	Source         string
	OnError        ErrorHandler
}

func defaultOptions() Options {
	return Options{
		Logger:         slog.Default(),
		TracerProvider: otel.GetTracerProvider(),
		MsgBufferSize:  100,
		Workers:        4,
		Source:         "mediator",
		OnError: func(ctx context.Context, msg Message[Request], err error) {
			// Default: no-op
		},
	}
}

func newOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(o *Options) {
		o.Metrics = metrics
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Options) {
		if provider != nil {
			o.TracerProvider = provider
		}
	}
}

// WithConcurrentFanOut runs the thunks matched by one fire-and-forget dispatch
// on at most max goroutines. Ordering and stop-at-first-error no longer hold.
func WithConcurrentFanOut(max int) Option {
	return func(o *Options) {
		if max > 0 {
			o.MaxConcurrency = max
		}
	}
}

func WithMsgBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MsgBufferSize = size
		}
	}
}

func WithWorkers(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithSource sets the source stamped on messages a Bus sends.
func WithSource(source string) Option {
	return func(o *Options) {
		if source != "" {
			o.Source = source
		}
	}
}

func WithOnError(handler ErrorHandler) Option {
	return func(o *Options) {
		if handler != nil {
			o.OnError = handler
		}
	}
}
