package depman

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Lookups never return errors: a missing object, a type mismatch and a type
// that cannot be constructed all read as a nil result. These values surface
// from StoreObject, Close, TypeRegistry.Construct and in log output.

var (
	// Lifecycle errors.
	ErrRegistryClosed     = errors.New("registry has been closed")
	ErrThreadClosed       = errors.New("thread has been closed")
	ErrThreadNotInContext = errors.New("no thread attached to context")

	// Validation errors.
	ErrInvalidPolicy = errors.New("invalid threading policy")
	ErrUnknownType   = errors.New("type id was not issued by this registry")
	ErrEmptyName     = errors.New("object name cannot be empty")
	ErrNilFactory    = errors.New("factory cannot be nil")

	// Construction errors.
	ErrConstructionUnavailable = errors.New("type has no default constructor")
)

var (
	_ error = PolicyError{}
	_ error = ConstructionError{}
	_ error = ConstructorPanicError{}
	_ error = ReleaseError{}
	_ error = DisposalError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// PolicyError indicates an invalid threading policy value.
type PolicyError struct {
	Value any
}

func (e PolicyError) Error() string {
	return fmt.Sprintf("invalid threading policy: %v", e.Value)
}

func (e PolicyError) Unwrap() error {
	return ErrInvalidPolicy
}

// ConstructionError wraps an error returned by a registered factory.
type ConstructionError struct {
	Type  reflect.Type
	Cause error
}

func (e ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct %s: %v", formatType(e.Type), e.Cause)
}

func (e ConstructionError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a registered factory panicked.
// It captures the panic value and stack trace for debugging.
type ConstructorPanicError struct {
	Type  reflect.Type
	Panic any
	Stack []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("factory for %s panicked: %v", formatType(e.Type), e.Panic))

	if len(e.Stack) > 0 {
		b.WriteString("\n\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// ReleaseError wraps a failure to close an object leaving a pool.
type ReleaseError struct {
	Name  string
	Cause error
}

func (e ReleaseError) Error() string {
	return fmt.Sprintf("release of %q failed: %v", e.Name, e.Cause)
}

func (e ReleaseError) Unwrap() error {
	return e.Cause
}

// DisposalError aggregates release errors collected during teardown.
type DisposalError struct {
	Context string // "registry", "thread"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		// Format pointers as *Type instead of *package.Type
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
