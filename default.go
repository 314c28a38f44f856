package depman

import "sync"

var (
	// defaultRegistry holds the process-wide Registry.
	defaultRegistry   *Registry
	defaultRegistryMu sync.Mutex
)

// Default returns the process-wide Registry, creating it on first use.
func Default() *Registry {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()

	if defaultRegistry == nil {
		defaultRegistry = New()
	}
	return defaultRegistry
}

// SetDefault replaces the process-wide Registry used by Dependency and
// StoreDependency. Passing nil makes the next Default call create a fresh
// one. The previous registry is returned and not closed.
//
// This is similar to slog.SetDefault.
func SetDefault(r *Registry) *Registry {
	defaultRegistryMu.Lock()
	defer defaultRegistryMu.Unlock()

	prev := defaultRegistry
	defaultRegistry = r
	return prev
}
