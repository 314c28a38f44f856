package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Factory constructs a session for id owned by owner.
type Factory func(id []byte, owner Manager) *Session

// Option configures a Store.
type Option func(*Store)

// WithFactory replaces how the store constructs new sessions.
func WithFactory(factory Factory) Option {
	return func(s *Store) {
		if factory != nil {
			s.factory = factory
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is an in-memory Manager. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	logger   zerolog.Logger
}

var (
	_ Manager = (*Store)(nil)
	_ Finder  = (*Store)(nil)
)

// Finder is implemented by managers that can report whether a session
// exists without creating it.
type Finder interface {
	Lookup(id []byte) (*Session, bool)
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		factory:  New,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session for id, creating and storing it first if needed.
func (s *Store) Get(id []byte) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[string(id)]; ok {
		return session
	}
	return s.createLocked(id)
}

// Lookup returns the session stored for id without creating one.
func (s *Store) Lookup(id []byte) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[string(id)]
	return session, ok
}

// CreateSession constructs a new session for id and stores it, replacing any
// session already stored under id.
func (s *Store) CreateSession(id []byte) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createLocked(id)
}

func (s *Store) createLocked(id []byte) *Session {
	session := s.factory(id, s)
	if session == nil {
		session = New(id, s)
	}
	s.sessions[string(id)] = session

	s.logger.Debug().Int("sessions", len(s.sessions)).Msg("session created")
	return session
}

// RemoveSession forgets id. Removing an unknown id does nothing.
func (s *Store) RemoveSession(id []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[string(id)]; !ok {
		return
	}
	delete(s.sessions, string(id))
	s.logger.Debug().Int("sessions", len(s.sessions)).Msg("session removed")
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Resolve returns the session for an id presented by a client. An empty id,
// or one a Finder manager does not know, is never adopted: a fresh id from
// newID is used instead and issued reports true so the caller can hand it
// back to the client.
func Resolve(manager Manager, id []byte, newID func() []byte) (session *Session, issued bool) {
	if len(id) > 0 {
		finder, ok := manager.(Finder)
		if !ok {
			return manager.Get(id), false
		}
		if s, ok := finder.Lookup(id); ok {
			return s, false
		}
	}
	return manager.Get(newID()), true
}
