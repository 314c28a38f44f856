package depman

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"
)

// TypeID is an opaque runtime identifier for a registered type.
type TypeID int

// NoType means "unknown type" and disables type checking and construction.
const NoType TypeID = -1

// Factory default-constructs an instance of a registered type.
type Factory func() (any, error)

// TypeRegistry assigns stable ids to types and holds the default
// constructors used for lazy construction. It is safe for concurrent use.
//
// Types are registered explicitly:
//
//	types := depman.NewTypeRegistry()
//	depman.Register(types, NewMailer)
type TypeRegistry struct {
	mu    sync.RWMutex
	ids   map[reflect.Type]TypeID
	types []registeredType
}

type registeredType struct {
	typ     reflect.Type
	factory Factory
}

// NewTypeRegistry creates an empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		ids: make(map[reflect.Type]TypeID),
	}
}

// IDOf returns the id of t, assigning a new one if t was never seen.
// A nil type has NoType.
func (r *TypeRegistry) IDOf(t reflect.Type) TypeID {
	if t == nil {
		return NoType
	}

	r.mu.RLock()
	id, ok := r.ids[t]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check pattern
	if id, ok := r.ids[t]; ok {
		return id
	}

	id = TypeID(len(r.types))
	r.types = append(r.types, registeredType{typ: t})
	r.ids[t] = id
	return id
}

// Lookup returns the id of t without assigning one.
func (r *TypeRegistry) Lookup(t reflect.Type) (TypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.ids[t]
	return id, ok
}

// TypeOf returns the type behind id, or nil if id was not issued here.
func (r *TypeRegistry) TypeOf(id TypeID) reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.issued(id) {
		return nil
	}
	return r.types[id].typ
}

// Known reports whether id was issued by this registry.
func (r *TypeRegistry) Known(id TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.issued(id)
}

// SetFactory attaches the default constructor for id, replacing any
// previous one.
func (r *TypeRegistry) SetFactory(id TypeID, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.issued(id) {
		return fmt.Errorf("set factory for type %d: %w", id, ErrUnknownType)
	}
	r.types[id].factory = factory
	return nil
}

// CanConstruct reports whether id has a default constructor.
func (r *TypeRegistry) CanConstruct(id TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.issued(id) && r.types[id].factory != nil
}

// Construct default-constructs an instance of id. It returns
// ErrConstructionUnavailable when id has no factory. A panicking factory
// is reported as ConstructorPanicError.
func (r *TypeRegistry) Construct(id TypeID) (instance any, err error) {
	r.mu.RLock()
	if !r.issued(id) {
		r.mu.RUnlock()
		return nil, fmt.Errorf("construct type %d: %w", id, ErrUnknownType)
	}
	rt := r.types[id]
	r.mu.RUnlock()

	if rt.factory == nil {
		return nil, fmt.Errorf("construct %s: %w", formatType(rt.typ), ErrConstructionUnavailable)
	}

	defer func() {
		if p := recover(); p != nil {
			instance = nil
			err = ConstructorPanicError{Type: rt.typ, Panic: p, Stack: debug.Stack()}
		}
	}()

	instance, err = rt.factory()
	if err != nil {
		return nil, ConstructionError{Type: rt.typ, Cause: err}
	}
	if isNil(instance) {
		return nil, ConstructionError{Type: rt.typ, Cause: fmt.Errorf("factory returned nil")}
	}
	return instance, nil
}

func (r *TypeRegistry) issued(id TypeID) bool {
	return id >= 0 && int(id) < len(r.types)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// TypeIDOf returns the id of T in r, assigning one if needed.
func TypeIDOf[T any](r *TypeRegistry) TypeID {
	return r.IDOf(reflect.TypeFor[T]())
}

// Register attaches factory as the default constructor of T and returns
// T's id.
func Register[T any](r *TypeRegistry, factory func() T) TypeID {
	if factory == nil {
		panic(ErrNilFactory)
	}
	return RegisterFunc(r, func() (T, error) {
		return factory(), nil
	})
}

// RegisterFunc is Register for factories that can fail.
func RegisterFunc[T any](r *TypeRegistry, factory func() (T, error)) TypeID {
	if factory == nil {
		panic(ErrNilFactory)
	}

	id := TypeIDOf[T](r)
	// id was just issued and factory is non-nil, so SetFactory cannot fail.
	_ = r.SetFactory(id, func() (any, error) {
		v, err := factory()
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	return id
}

// NameOf returns the name the Dependency shortcut stores T under: the
// string form of T with one level of pointer removed, e.g. "mail.Mailer"
// for *mail.Mailer.
func NameOf[T any]() string {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
