package lsp

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLanguageID      = "nix"
)

// DrainConfig tunes how long Diagnostics keeps reading after a document
// is opened to pick up diagnostics the server publishes late.
type DrainConfig struct {
	// Settle is the initial wait before polling starts.
	Settle time.Duration
	// Poll is how long a single read waits for a frame.
	Poll time.Duration
	// Window caps the whole drain, settle included.
	Window time.Duration
}

// DefaultDrain returns the drain timings used when none are configured.
func DefaultDrain() DrainConfig {
	return DrainConfig{
		Settle: 100 * time.Millisecond,
		Poll:   100 * time.Millisecond,
		Window: 500 * time.Millisecond,
	}
}

type options struct {
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	languageID      string
	drain           DrainConfig
	logger          *slog.Logger
	tracerProvider  trace.TracerProvider
}

func defaultOptions() options {
	return options{
		requestTimeout:  DefaultRequestTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		languageID:      DefaultLanguageID,
		drain:           DefaultDrain(),
		logger:          slog.Default(),
		tracerProvider:  otel.GetTracerProvider(),
	}
}

type Option func(*options)

// WithRequestTimeout sets the deadline for a single request. A request that
// exceeds it tears the connection down.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithLanguageID sets the languageId sent with textDocument/didOpen.
func WithLanguageID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.languageID = id
		}
	}
}

func WithDrain(cfg DrainConfig) Option {
	return func(o *options) {
		o.drain = cfg
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets where request spans are recorded. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
