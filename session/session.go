// Package session provides a keyed session store with get-or-create
// semantics.
//
// A Manager hands out sessions by id. The default Store keeps them in
// memory; other managers can reuse its Get/RemoveSession contract while
// supplying their own construction through WithFactory.
package session

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager resolves sessions by id.
type Manager interface {
	// Get returns the session for id, creating it if it does not exist.
	Get(id []byte) *Session

	// RemoveSession forgets id. Removing an unknown id does nothing.
	RemoveSession(id []byte)
}

// Session is a value bound to an id and the manager that created it.
type Session struct {
	id        []byte
	manager   Manager
	createdAt time.Time

	mu     sync.RWMutex
	values map[string]any
}

// New creates a session for id owned by manager. Managers call it from
// their factory; it does not register the session anywhere.
func New(id []byte, manager Manager) *Session {
	return &Session{
		id:        bytes.Clone(id),
		manager:   manager,
		createdAt: time.Now(),
		values:    make(map[string]any),
	}
}

// ID returns a copy of the session id.
func (s *Session) ID() []byte {
	return bytes.Clone(s.id)
}

// Manager returns the manager owning the session.
func (s *Session) Manager() Manager {
	return s.manager
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Valid reports whether the session has an id and an owner.
func (s *Session) Valid() bool {
	return s != nil && len(s.id) > 0 && s.manager != nil
}

// Set stores a value in the session.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Value returns a value stored in the session.
func (s *Session) Value(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Delete removes a value from the session.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// NewID returns a fresh random session id.
func NewID() []byte {
	id := uuid.New()
	return []byte(id.String())
}

// contextKey is the key for storing the current session in context.
type contextKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
