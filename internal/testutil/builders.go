package testutil

import (
	"testing"

	"github.com/junioryono/depman"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// RegistryBuilder helps build test registries
type RegistryBuilder struct {
	t     *testing.T
	types *depman.TypeRegistry
	opts  []depman.Option
}

// NewRegistryBuilder creates a new builder
func NewRegistryBuilder(t *testing.T) *RegistryBuilder {
	return &RegistryBuilder{
		t:     t,
		types: depman.NewTypeRegistry(),
	}
}

// WithPolicy sets the default threading policy
func (b *RegistryBuilder) WithPolicy(policy depman.ThreadingPolicy) *RegistryBuilder {
	b.opts = append(b.opts, depman.WithDefaultPolicy(policy))
	return b
}

// WithOption adds an arbitrary registry option
func (b *RegistryBuilder) WithOption(opt depman.Option) *RegistryBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// WithTestLogger routes registry logs to the test output
func (b *RegistryBuilder) WithTestLogger() *RegistryBuilder {
	b.opts = append(b.opts, depman.WithLogger(zerolog.New(zerolog.NewTestWriter(b.t))))
	return b
}

// Types returns the type registry the built registry will use
func (b *RegistryBuilder) Types() *depman.TypeRegistry {
	return b.types
}

// Build creates the registry and closes it when the test ends
func (b *RegistryBuilder) Build() *depman.Registry {
	b.t.Helper()

	opts := append([]depman.Option{depman.WithTypeRegistry(b.types)}, b.opts...)
	r := depman.New(opts...)
	b.t.Cleanup(func() {
		assert.NoError(b.t, r.Close())
	})
	return r
}

// Register adds a default constructor for T to the builder's type registry
func Register[T any](b *RegistryBuilder, factory func() T) *RegistryBuilder {
	depman.Register(b.types, factory)
	return b
}
