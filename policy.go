package depman

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ThreadingPolicy controls how object pools are partitioned between threads.
//
// Go does not expose thread identity, so a "thread" here is an explicit
// partition created with Registry.Attach and carried in a context.Context.
type ThreadingPolicy int

const (
	// DefaultPolicy maps to the registry's current default policy.
	// It is never recorded as the policy of a stored object.
	DefaultPolicy ThreadingPolicy = iota

	// ApplicationGlobal uses one pool for all objects, with a mutex guarding
	// every lookup and mutation.
	ApplicationGlobal

	// SingleThread uses one pool for all objects with no synchronization.
	// Use it only when the whole application touches the registry from a
	// single goroutine.
	SingleThread

	// ThreadLocal uses one pool per thread. Objects are released when the
	// thread is closed, except persistent ones which live until the registry
	// is closed. This is the initial default.
	ThreadLocal
)

// String returns the string representation of the ThreadingPolicy.
func (p ThreadingPolicy) String() string {
	switch p {
	case DefaultPolicy:
		return "Default"
	case ApplicationGlobal:
		return "ApplicationGlobal"
	case SingleThread:
		return "SingleThread"
	case ThreadLocal:
		return "ThreadLocal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(p))
	}
}

// IsValid checks if the threading policy is one of the declared values.
func (p ThreadingPolicy) IsValid() bool {
	return p >= DefaultPolicy && p <= ThreadLocal
}

// ParseThreadingPolicy parses the textual form of a policy. Matching is
// case-insensitive and accepts the kebab and snake spellings used in config
// files, e.g. "thread-local" or "application_global".
func ParseThreadingPolicy(s string) (ThreadingPolicy, error) {
	normalized := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch normalized {
	case "default", "defaultpolicy":
		return DefaultPolicy, nil
	case "applicationglobal", "global":
		return ApplicationGlobal, nil
	case "singlethread", "single":
		return SingleThread, nil
	case "threadlocal", "thread":
		return ThreadLocal, nil
	default:
		return DefaultPolicy, PolicyError{Value: s}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ThreadingPolicy) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, PolicyError{Value: int(p)}
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ThreadingPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseThreadingPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p ThreadingPolicy) MarshalJSON() ([]byte, error) {
	text, err := p.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ThreadingPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	return p.UnmarshalText([]byte(s))
}
