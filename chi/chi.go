// Package chi provides depman integration for the Chi router.
//
// ThreadMiddleware attaches a fresh depman Thread to every request, so
// ThreadLocal objects live exactly as long as the request. SessionMiddleware
// resolves a cookie-keyed session and carries it in the request context.
//
// Example usage:
//
//	registry := depman.New()
//	sessions := session.NewStore()
//
//	r := chi.NewRouter()
//	r.Use(depmanchi.ThreadMiddleware(registry))
//	r.Use(depmanchi.SessionMiddleware(sessions))
//
//	r.Get("/users/{id}", depmanchi.Handle(registry, (*UserController).GetByID))
package chi

import (
	"fmt"
	"net/http"

	"github.com/junioryono/depman"
	"github.com/junioryono/depman/session"
	"github.com/rs/zerolog"
)

// DefaultCookieName is the session cookie used unless WithCookieName says
// otherwise.
const DefaultCookieName = "depman_session"

// Config holds the configuration for the thread middleware.
type Config struct {
	// ErrorHandler is called when a request hook fails.
	// If nil, a default handler returning 500 Internal Server Error is used.
	ErrorHandler func(http.ResponseWriter, *http.Request, error)

	// CloseErrorHandler is called when releasing the request's objects fails.
	// If nil, errors are logged through Logger.
	CloseErrorHandler func(error)

	// Middlewares are functions that run after the thread is attached.
	// They can be used to seed request objects, such as the current user.
	Middlewares []func(*depman.Thread, *http.Request) error

	// Logger receives close errors. The default discards everything.
	Logger zerolog.Logger
}

// Option configures the thread middleware.
type Option func(*Config)

// WithErrorHandler sets the error handler for request hook failures.
func WithErrorHandler(h func(http.ResponseWriter, *http.Request, error)) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

// WithCloseErrorHandler sets the error handler for thread close failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithMiddleware adds a function that runs after the thread is attached.
// Multiple middlewares are executed in the order they are added.
func WithMiddleware(mw func(*depman.Thread, *http.Request) error) Option {
	return func(c *Config) {
		c.Middlewares = append(c.Middlewares, mw)
	}
}

// WithLogger sets the logger used by the default close error handler.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func defaultConfig() *Config {
	return &Config{
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		Logger: zerolog.Nop(),
	}
}

// ThreadMiddleware creates a Chi middleware that attaches a new depman
// Thread to each request. The thread is reachable through the request
// context and is closed, releasing its objects, when the request completes.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Use(depmanchi.ThreadMiddleware(registry))
func ThreadMiddleware(registry *depman.Registry, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CloseErrorHandler == nil {
		logger := cfg.Logger
		cfg.CloseErrorHandler = func(err error) {
			logger.Error().Err(err).Msg("failed to close request thread")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, thread := registry.Attach(r.Context())
			defer func() {
				if err := thread.Close(); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			r = r.WithContext(ctx)

			for _, mw := range cfg.Middlewares {
				if err := mw(thread, r); err != nil {
					cfg.ErrorHandler(w, r, err)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SessionConfig holds the configuration for the session middleware.
type SessionConfig struct {
	// CookieName names the cookie carrying the session id.
	CookieName string

	// Cookie customizes the cookie issued for a new session. Name and Value
	// are always overwritten.
	Cookie http.Cookie

	// NewID mints ids for requests without a session cookie.
	NewID func() []byte
}

// SessionOption configures the session middleware.
type SessionOption func(*SessionConfig)

// WithCookieName sets the session cookie name.
func WithCookieName(name string) SessionOption {
	return func(c *SessionConfig) {
		if name != "" {
			c.CookieName = name
		}
	}
}

// WithCookie sets the template for issued session cookies.
func WithCookie(cookie http.Cookie) SessionOption {
	return func(c *SessionConfig) {
		c.Cookie = cookie
	}
}

// WithIDGenerator sets how new session ids are minted.
func WithIDGenerator(newID func() []byte) SessionOption {
	return func(c *SessionConfig) {
		if newID != nil {
			c.NewID = newID
		}
	}
}

func defaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		CookieName: DefaultCookieName,
		Cookie: http.Cookie{
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		NewID: session.NewID,
	}
}

// SessionMiddleware creates a Chi middleware that resolves the session named
// by the request's session cookie. Requests without the cookie, or whose
// cookie names no session the manager knows, get a new session and a
// Set-Cookie header; a client cannot choose its own session id when the
// manager implements session.Finder. The session is retrieved with
// session.FromContext.
func SessionMiddleware(manager session.Manager, opts ...SessionOption) func(http.Handler) http.Handler {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id []byte
			if c, err := r.Cookie(cfg.CookieName); err == nil {
				id = []byte(c.Value)
			}

			s, issued := session.Resolve(manager, id, cfg.NewID)
			if issued {
				cookie := cfg.Cookie
				cookie.Name = cfg.CookieName
				cookie.Value = string(s.ID())
				http.SetCookie(w, &cookie)
			}
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
		})
	}
}

// HandlerConfig holds configuration for the Handle wrapper.
type HandlerConfig struct {
	// PanicRecovery enables panic recovery in the handler.
	PanicRecovery bool

	// PanicHandler is called when a panic occurs (if PanicRecovery is true).
	PanicHandler func(http.ResponseWriter, *http.Request, any)

	// LookupErrorHandler is called when the controller cannot be obtained.
	LookupErrorHandler func(http.ResponseWriter, *http.Request, error)

	// Name overrides the object name the controller is looked up by.
	Name string

	// Policy selects the pool the controller is looked up in.
	Policy depman.ThreadingPolicy
}

// HandlerOption configures the Handle wrapper.
type HandlerOption func(*HandlerConfig)

// WithPanicRecovery enables or disables panic recovery in the handler.
func WithPanicRecovery(enabled bool) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicRecovery = enabled
	}
}

// WithPanicHandler sets the handler for panics.
func WithPanicHandler(h func(http.ResponseWriter, *http.Request, any)) HandlerOption {
	return func(c *HandlerConfig) {
		c.PanicHandler = h
	}
}

// WithLookupErrorHandler sets the error handler for controller lookup failures.
func WithLookupErrorHandler(h func(http.ResponseWriter, *http.Request, error)) HandlerOption {
	return func(c *HandlerConfig) {
		c.LookupErrorHandler = h
	}
}

// WithName looks the controller up by name instead of its type name.
func WithName(name string) HandlerOption {
	return func(c *HandlerConfig) {
		c.Name = name
	}
}

// WithPolicy looks the controller up in the pool selected by policy.
func WithPolicy(policy depman.ThreadingPolicy) HandlerOption {
	return func(c *HandlerConfig) {
		c.Policy = policy
	}
}

func defaultHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		PanicHandler: func(w http.ResponseWriter, r *http.Request, v any) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
		LookupErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		},
	}
}

// Handle wraps a controller method. The controller T is looked up in
// registry with the request context, so ThreadLocal controllers come from
// the request's thread and are constructed on first use.
//
// The method signature should be: func(T, http.ResponseWriter, *http.Request)
//
// Example:
//
//	r.Get("/users/{id}", depmanchi.Handle(registry, (*UserController).GetByID))
func Handle[T any](registry *depman.Registry, method func(T, http.ResponseWriter, *http.Request), opts ...HandlerOption) http.HandlerFunc {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	name := cfg.Name
	if name == "" {
		name = depman.NameOf[T]()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.PanicRecovery {
			defer func() {
				if v := recover(); v != nil {
					cfg.PanicHandler(w, r, v)
				}
			}()
		}

		controller, ok := depman.Lookup[T](r.Context(), registry, name, depman.InPolicy(cfg.Policy))
		if !ok {
			cfg.LookupErrorHandler(w, r, fmt.Errorf("object %q not available", name))
			return
		}

		method(controller, w, r)
	}
}
