package depman

import (
	"context"
)

// Get returns object name as T, default-constructing it if T has a
// registered factory and name does not exist yet. It returns the zero
// value of T if the object is missing, has another type, or cannot be
// constructed.
//
// Example:
//
//	mailer := depman.Get[*Mailer](ctx, registry, "mailer")
//	if mailer == nil {
//	    // not stored and no factory registered for *Mailer
//	}
func Get[T any](ctx context.Context, r *Registry, name string, opts ...CallOption) T {
	v, _ := Lookup[T](ctx, r, name, opts...)
	return v
}

// Lookup is Get with an explicit found flag.
func Lookup[T any](ctx context.Context, r *Registry, name string, opts ...CallOption) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}

	co := newCallOptions(opts)
	obj := r.ObjectByName(ctx, name, TypeIDOf[T](r.types), co.policy)
	v, ok := obj.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Store stores value as name with T's type id. The registry takes
// ownership of value.
func Store[T any](ctx context.Context, r *Registry, name string, value T, opts ...CallOption) error {
	if r == nil {
		return ErrRegistryClosed
	}

	co := newCallOptions(opts)
	return r.StoreObject(ctx, name, value, TypeIDOf[T](r.types), co.policy, opts...)
}

// Dependency returns the T stored in the default registry under NameOf[T],
// constructing it on first use if T has a factory.
//
// Example:
//
//	depman.Register(depman.Default().Types(), NewMailer)
//	mailer := depman.Dependency[*Mailer](ctx)
func Dependency[T any](ctx context.Context, opts ...CallOption) T {
	return Get[T](ctx, Default(), NameOf[T](), opts...)
}

// StoreDependency stores value in the default registry under NameOf[T].
// Tests use it to replace a dependency with a double.
func StoreDependency[T any](ctx context.Context, value T, opts ...CallOption) error {
	return Store(ctx, Default(), NameOf[T](), value, opts...)
}
