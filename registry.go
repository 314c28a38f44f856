package depman

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/junioryono/depman/internal/pool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// Registry is a named, type-checked object store with lazy construction.
//
// Objects live in pools selected by a ThreadingPolicy. Each pool owns its
// objects: callers receive them but must not close them. An object is
// released when it is overwritten or when its pool is torn down.
type Registry struct {
	id      string
	types   *TypeRegistry
	logger  zerolog.Logger
	metrics *metrics

	defaultPolicy atomic.Int32

	global *partition
	single *partition
	root   *Thread

	threads   map[*Thread]struct{}
	threadsMu sync.Mutex

	teardown *teardownList
	closed   atomic.Bool
}

// New creates a Registry. The default threading policy is ThreadLocal
// unless WithDefaultPolicy says otherwise.
func New(opts ...Option) *Registry {
	o := &options{
		defaultPolicy: ThreadLocal,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt.applyOption(o)
		}
	}
	if o.types == nil {
		o.types = NewTypeRegistry()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	r := &Registry{
		id:       uuid.NewString(),
		types:    o.types,
		metrics:  newMetrics(o.meterProvider),
		threads:  make(map[*Thread]struct{}),
		teardown: newTeardownList(),
	}
	r.logger = o.logger.With().Str("registry", r.id).Logger()
	r.defaultPolicy.Store(int32(o.defaultPolicy))
	r.global = newPartition(&sync.Mutex{}, r.releaseEntry, ErrRegistryClosed)
	r.single = newPartition(noLock{}, r.releaseEntry, ErrRegistryClosed)
	r.root = newThread(r, true)

	return r
}

// ID returns the unique identifier of this registry.
func (r *Registry) ID() string {
	return r.id
}

// Types returns the type registry used for type checks and construction.
func (r *Registry) Types() *TypeRegistry {
	return r.types
}

// IsClosed reports whether Close has been called.
func (r *Registry) IsClosed() bool {
	return r.closed.Load()
}

// DefaultThreadingPolicy returns the policy DefaultPolicy resolves to.
func (r *Registry) DefaultThreadingPolicy() ThreadingPolicy {
	return ThreadingPolicy(r.defaultPolicy.Load())
}

// SetDefaultThreadingPolicy changes the policy DefaultPolicy resolves to.
// Passing DefaultPolicy, or an invalid value, has no effect.
//
// Changing the default while other goroutines use the registry redirects
// their DefaultPolicy calls to a different pool mid-flight; configure it
// once at startup.
func (r *Registry) SetDefaultThreadingPolicy(policy ThreadingPolicy) {
	if policy == DefaultPolicy || !policy.IsValid() {
		return
	}
	r.defaultPolicy.Store(int32(policy))
}

// ObjectByName returns object name from the pool selected by policy.
//
// If typeID is not NoType it is used as type check: an object stored with a
// different type yields nil. If name does not exist and typeID is not
// NoType, an instance is default-constructed through the type registry,
// stored and returned. Without a type, or without a factory for it, a
// missing name yields nil.
func (r *Registry) ObjectByName(ctx context.Context, name string, typeID TypeID, policy ThreadingPolicy) any {
	if ctx == nil {
		ctx = context.Background()
	}

	part, resolved, err := r.route(ctx, policy)
	if err != nil {
		r.logger.Debug().Err(err).Str("name", name).Msg("lookup rejected")
		return nil
	}

	part.mu.Lock()
	if part.closed {
		part.mu.Unlock()
		return nil
	}
	entry, res := part.pool.Lookup(name, int(typeID))
	part.mu.Unlock()

	switch res {
	case pool.Found:
		r.metrics.lookup(ctx, resolved, outcomeHit)
		return entry.Value
	case pool.Mismatch:
		r.metrics.lookup(ctx, resolved, outcomeMismatch)
		return nil
	}

	if typeID == NoType {
		r.metrics.lookup(ctx, resolved, outcomeMiss)
		return nil
	}

	return r.construct(ctx, part, resolved, name, typeID)
}

// construct builds a missing object outside the pool lock, so factories may
// use the registry themselves, then inserts it unless another caller got
// there first.
func (r *Registry) construct(ctx context.Context, part *partition, policy ThreadingPolicy, name string, typeID TypeID) any {
	obj, err := r.types.Construct(typeID)
	if err != nil {
		r.metrics.lookup(ctx, policy, outcomeUnavailable)
		level := zerolog.WarnLevel
		if errors.Is(err, ErrConstructionUnavailable) || errors.Is(err, ErrUnknownType) {
			level = zerolog.DebugLevel
		}
		r.logger.WithLevel(level).
			Err(err).
			Str("name", name).
			Stringer("policy", policy).
			Msg("object could not be constructed")
		return nil
	}

	entry := pool.Entry{Name: name, Type: int(typeID), Value: obj}

	part.mu.Lock()
	if part.closed {
		part.mu.Unlock()
		_ = r.releaseEntry(entry)
		return nil
	}
	current, inserted := part.pool.StoreIfAbsent(entry)
	part.mu.Unlock()

	if !inserted {
		// Lost the race; keep the winner so the name holds one instance.
		_ = r.releaseEntry(entry)
		if current.Type != int(typeID) {
			r.metrics.lookup(ctx, policy, outcomeMismatch)
			return nil
		}
		r.metrics.lookup(ctx, policy, outcomeHit)
		return current.Value
	}

	r.metrics.lookup(ctx, policy, outcomeConstructed)
	r.logger.Debug().
		Str("name", name).
		Str("type", formatType(r.types.TypeOf(typeID))).
		Stringer("policy", policy).
		Msg("object constructed")
	return obj
}

// ObjectType returns the type id object name was stored with, or NoType if
// there is no such object. It never constructs.
func (r *Registry) ObjectType(ctx context.Context, name string, policy ThreadingPolicy) TypeID {
	part, _, err := r.route(ctx, policy)
	if err != nil {
		return NoType
	}

	part.mu.Lock()
	defer part.mu.Unlock()

	if part.closed {
		return NoType
	}
	entry, ok := part.pool.Get(name)
	if !ok {
		return NoType
	}
	return TypeID(entry.Type)
}

// HasObject reports whether object name exists with a known type.
func (r *Registry) HasObject(ctx context.Context, name string, policy ThreadingPolicy) bool {
	return r.ObjectType(ctx, name, policy) != NoType
}

// StoreObject stores object of typeID as name, overwriting and releasing
// any previous object of the same name. The registry takes ownership.
//
// An error is returned only on misuse: an empty name, a type id this
// registry never issued, an invalid policy, or a closed registry or thread.
// A failure to release the overwritten object is logged, not returned.
func (r *Registry) StoreObject(ctx context.Context, name string, object any, typeID TypeID, policy ThreadingPolicy, opts ...StoreOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if name == "" {
		return ErrEmptyName
	}
	if typeID != NoType && !r.types.Known(typeID) {
		return ErrUnknownType
	}

	part, resolved, err := r.route(ctx, policy)
	if err != nil {
		return err
	}

	co := newCallOptions(opts)
	entry := pool.Entry{
		Name:       name,
		Type:       int(typeID),
		Value:      object,
		Persistent: co.persistent && resolved == ThreadLocal,
	}

	part.mu.Lock()
	if part.closed {
		part.mu.Unlock()
		return part.closedErr
	}
	// Release errors were already logged by releaseEntry.
	_ = part.pool.Store(entry)
	part.mu.Unlock()

	r.metrics.store(ctx, resolved)
	r.logger.Debug().
		Str("name", name).
		Stringer("policy", resolved).
		Bool("persistent", entry.Persistent).
		Msg("object stored")
	return nil
}

// Close releases every object the registry owns: attached threads first,
// then the root thread, the shared pools and finally persistent objects of
// threads that already ended. Close is idempotent.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.threadsMu.Lock()
	threads := make([]*Thread, 0, len(r.threads))
	for t := range r.threads {
		threads = append(threads, t)
	}
	r.threadsMu.Unlock()

	var errs []error
	for _, t := range threads {
		if err := t.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.root.close(); err != nil {
		errs = append(errs, err)
	}

	for _, part := range []*partition{r.single, r.global} {
		part.mu.Lock()
		part.closed = true
		if err := part.pool.FreeAll(); err != nil {
			errs = append(errs, err)
		}
		part.mu.Unlock()
	}

	r.threadsMu.Lock()
	errs = append(errs, r.teardown.dispose(r.releaseEntry)...)
	r.threadsMu.Unlock()

	r.logger.Debug().Int("threads", len(threads)).Msg("registry closed")

	if len(errs) > 0 {
		return DisposalError{Context: "registry", Errors: errs}
	}
	return nil
}

// releaseEntry destroys an object leaving a pool.
func (r *Registry) releaseEntry(e pool.Entry) error {
	ctx := context.Background()
	r.metrics.release(ctx)

	if err := dispose(ctx, e.Value); err != nil {
		r.logger.Error().Err(err).Str("name", e.Name).Msg("failed to release object")
		return ReleaseError{Name: e.Name, Cause: err}
	}
	return nil
}
