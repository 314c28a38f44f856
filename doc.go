// Package depman provides a named, type-checked dependency registry with
// lazy construction and thread-aware object pools.
//
// # Overview
//
// A Registry stores objects under string names together with the type they
// were stored as. Lookups are type-checked, and a lookup that names a type
// with a registered default constructor creates the object on first use:
//
//	types := depman.NewTypeRegistry()
//	depman.Register(types, NewMailer)
//
//	registry := depman.New(depman.WithTypeRegistry(types))
//	defer registry.Close()
//
//	mailer := depman.Get[*Mailer](ctx, registry, "mailer")
//
// # Threading Policies
//
// Every call selects a pool through a ThreadingPolicy:
//
//   - ApplicationGlobal: one pool, every access serialized by a mutex
//   - SingleThread: one pool, no synchronization at all
//   - ThreadLocal: one pool per Thread, released when the Thread closes
//   - DefaultPolicy: whatever SetDefaultThreadingPolicy configured
//     (ThreadLocal initially)
//
// Go has no thread identity, so a Thread is an explicit partition carried in
// a context.Context. Attach one per request or worker:
//
//	ctx, thread := registry.Attach(ctx)
//	defer thread.Close()
//
// Contexts without a Thread resolve to the registry's root thread, which
// lives until the registry is closed.
//
// # Ownership
//
// The registry owns what it stores. Objects implementing Disposable or
// DisposableWithContext are closed exactly once: when overwritten by
// StoreObject, when their Thread closes, or when the Registry closes.
// Objects stored with the Persistent option outlive their Thread and are
// released by Registry.Close.
//
// # Failure Model
//
// Lookups never fail loudly. A missing object, a type mismatch and a type
// that cannot be constructed all read as nil (or the zero value for the
// generic helpers). StoreObject returns an error only on misuse.
//
// # Process-wide Registry
//
// Default returns a lazily created process-wide Registry. Dependency reads
// from it using the type name as object name:
//
//	mailer := depman.Dependency[*Mailer](ctx) // name "app.Mailer"
//
// Tests replace dependencies with StoreDependency.
package depman
