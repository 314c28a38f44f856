package depman

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// Option configures a Registry.
type Option interface {
	applyOption(*options)
}

// options holds registry configuration.
type options struct {
	defaultPolicy ThreadingPolicy
	types         *TypeRegistry
	logger        zerolog.Logger
	meterProvider metric.MeterProvider
}

// optionFunc adapts a function to Option.
type optionFunc func(*options)

func (f optionFunc) applyOption(opts *options) {
	f(opts)
}

// WithDefaultPolicy sets the initial default threading policy.
// DefaultPolicy and invalid values are ignored.
func WithDefaultPolicy(policy ThreadingPolicy) Option {
	return optionFunc(func(opts *options) {
		if policy != DefaultPolicy && policy.IsValid() {
			opts.defaultPolicy = policy
		}
	})
}

// WithTypeRegistry sets the type registry used for type checks and lazy
// construction. A registry may be shared between several Registries.
func WithTypeRegistry(types *TypeRegistry) Option {
	return optionFunc(func(opts *options) {
		if types != nil {
			opts.types = types
		}
	})
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return optionFunc(func(opts *options) {
		opts.logger = logger
	})
}

// WithMeterProvider sets the OpenTelemetry meter provider. The default is
// the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return optionFunc(func(opts *options) {
		if mp != nil {
			opts.meterProvider = mp
		}
	})
}

// CallOption configures a single Get, Lookup or Store call.
type CallOption interface {
	applyCallOption(*callOptions)
}

type callOptions struct {
	policy     ThreadingPolicy
	persistent bool
}

type callOptionFunc func(*callOptions)

func (f callOptionFunc) applyCallOption(opts *callOptions) {
	f(opts)
}

// InPolicy selects the pool partition for the call.
func InPolicy(policy ThreadingPolicy) CallOption {
	return callOptionFunc(func(opts *callOptions) {
		opts.policy = policy
	})
}

// Persistent marks a stored object as surviving the end of its thread.
// It is released when the registry is closed instead. Only ThreadLocal
// entries are affected.
func Persistent() CallOption {
	return callOptionFunc(func(opts *callOptions) {
		opts.persistent = true
	})
}

// StoreOption configures StoreObject.
type StoreOption = CallOption

func newCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyCallOption(&co)
		}
	}
	return co
}
